package exam

import (
	"context"
	"errors"
)

var (
	ErrSchemaNotFound   = errors.New("test schema not found")
	ErrTestNotFound     = errors.New("test not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrQuestionNotFound = errors.New("question not found")
)

type SchemaListOpts struct {
	SubjectID string // filter by subject
}

type TestListOpts struct {
	CourseID  string // tests assigned to a course
	CourseIDs []string
	SchemaID  string // tests spawned from a schema
	StudentID string // tests the student is assigned to
}

type Store interface {
	PutSchema(ctx context.Context, s Schema) error
	GetSchema(ctx context.Context, id string) (Schema, error)
	ListSchemas(ctx context.Context, opts SchemaListOpts) ([]SchemaSummary, error)

	// CreateTest stores the test with its question snapshot and assigned
	// students and creates one empty attempt per student.
	CreateTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, opts TestListOpts) ([]TestSummary, error)

	AttemptsByTest(ctx context.Context, testID string) ([]Attempt, error)
	AttemptByStudent(ctx context.Context, testID, studentID string) (Attempt, error)
	// SaveAnswer replaces the answer of one question of the student's
	// attempt. Last write wins.
	SaveAnswer(ctx context.Context, testID, studentID, questionID string, optionIDs []string) (Attempt, error)
}
