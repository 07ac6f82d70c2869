package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutSchema(ctx context.Context, sc Schema) error {
	qj, err := json.Marshal(sc.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO test_schemas (id, name, description, author_id, subject_id, questions_json, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sc.ID, sc.Name, sc.Description, sc.Author.ID, sc.Subject.ID, string(qj), sc.Active)
	return err
}

func (s *SQLStore) GetSchema(ctx context.Context, id string) (Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ts.id, ts.name, ts.description, ts.active, ts.questions_json,
		       u.id, u.label, sub.id, sub.code, sub.name
		  FROM test_schemas ts
		  JOIN users u ON u.id = ts.author_id
		  JOIN subjects sub ON sub.id = ts.subject_id
		 WHERE ts.id = $1`, id)

	var sc Schema
	var qjson string
	if err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.Active, &qjson,
		&sc.Author.ID, &sc.Author.Label, &sc.Subject.ID, &sc.Subject.Code, &sc.Subject.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schema{}, ErrSchemaNotFound
		}
		return Schema{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &sc.Questions); err != nil {
		return Schema{}, err
	}
	return sc, nil
}

func (s *SQLStore) ListSchemas(ctx context.Context, opts SchemaListOpts) ([]SchemaSummary, error) {
	q := `
		SELECT ts.id, ts.name, ts.description,
		       u.id, u.label, sub.id, sub.code, sub.name
		  FROM test_schemas ts
		  JOIN users u ON u.id = ts.author_id
		  JOIN subjects sub ON sub.id = ts.subject_id`
	var args []any
	if opts.SubjectID != "" {
		q += ` WHERE ts.subject_id = $1`
		args = append(args, opts.SubjectID)
	}
	q += ` ORDER BY ts.name`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SchemaSummary{}
	for rows.Next() {
		var sc SchemaSummary
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Description,
			&sc.Author.ID, &sc.Author.Label, &sc.Subject.ID, &sc.Subject.Code, &sc.Subject.Name); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateTest(ctx context.Context, t Test) (err error) {
	qj, err := json.Marshal(t.Questions)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO tests (id, schema_id, course_id, start_at, end_at, questions_json)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.SchemaID, t.CourseID, t.Start.Unix(), t.End.Unix(), string(qj))
	if err != nil {
		return err
	}

	// Empty answer records, one per snapshot question, keep question order.
	answers := make([]Answer, len(t.Questions))
	for i, q := range t.Questions {
		answers[i] = Answer{QuestionID: q.ID, OptionIDs: []string{}}
	}
	aj, err := json.Marshal(answers)
	if err != nil {
		return err
	}

	for _, studentID := range t.StudentIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO test_students (test_id, student_id) VALUES ($1, $2)`,
			t.ID, studentID); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO test_attempts (id, test_id, student_id, started, answers_json)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), t.ID, studentID, false, string(aj)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, schema_id, course_id, start_at, end_at, questions_json
		FROM tests WHERE id = $1`, id)

	var t Test
	var start, end int64
	var qjson string
	if err := row.Scan(&t.ID, &t.SchemaID, &t.CourseID, &start, &end, &qjson); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrTestNotFound
		}
		return Test{}, err
	}
	t.Start = time.Unix(start, 0)
	t.End = time.Unix(end, 0)
	if err := json.Unmarshal([]byte(qjson), &t.Questions); err != nil {
		return Test{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT student_id FROM test_students WHERE test_id = $1`, id)
	if err != nil {
		return Test{}, err
	}
	defer rows.Close()
	t.StudentIDs = []string{}
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return Test{}, err
		}
		t.StudentIDs = append(t.StudentIDs, sid)
	}
	return t, rows.Err()
}

func (s *SQLStore) ListTests(ctx context.Context, opts TestListOpts) ([]TestSummary, error) {
	q := `
		SELECT t.id, t.start_at, t.end_at, ts.name,
		       c.id, c.code, sub.id, sub.code, sub.name
		  FROM tests t
		  JOIN test_schemas ts ON ts.id = t.schema_id
		  JOIN courses c ON c.id = t.course_id
		  JOIN subjects sub ON sub.id = c.subject_id`
	var (
		conds []string
		args  []any
	)
	next := func() int { return len(args) + 1 }

	if opts.StudentID != "" {
		q += ` JOIN test_students st ON st.test_id = t.id`
		conds = append(conds, fmt.Sprintf("st.student_id = $%d", next()))
		args = append(args, opts.StudentID)
	}
	if opts.CourseID != "" {
		conds = append(conds, fmt.Sprintf("t.course_id = $%d", next()))
		args = append(args, opts.CourseID)
	}
	if len(opts.CourseIDs) > 0 {
		ph := make([]string, len(opts.CourseIDs))
		for i, id := range opts.CourseIDs {
			ph[i] = fmt.Sprintf("$%d", next())
			args = append(args, id)
		}
		conds = append(conds, "t.course_id IN ("+strings.Join(ph, ",")+")")
	}
	if opts.SchemaID != "" {
		conds = append(conds, fmt.Sprintf("t.schema_id = $%d", next()))
		args = append(args, opts.SchemaID)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY t.start_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TestSummary{}
	for rows.Next() {
		var ts TestSummary
		var start, end int64
		if err := rows.Scan(&ts.ID, &start, &end, &ts.SchemaName,
			&ts.Course.ID, &ts.Course.Code,
			&ts.Course.Subject.ID, &ts.Course.Subject.Code, &ts.Course.Subject.Name); err != nil {
			return nil, err
		}
		ts.Start = time.Unix(start, 0)
		ts.End = time.Unix(end, 0)
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *SQLStore) AttemptsByTest(ctx context.Context, testID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.test_id, a.started, a.answers_json, u.id, u.label
		  FROM test_attempts a
		  JOIN users u ON u.id = a.student_id
		 WHERE a.test_id = $1
		 ORDER BY u.label`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AttemptByStudent(ctx context.Context, testID, studentID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.test_id, a.started, a.answers_json, u.id, u.label
		  FROM test_attempts a
		  JOIN users u ON u.id = a.student_id
		 WHERE a.test_id = $1 AND a.student_id = $2`, testID, studentID)

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) SaveAnswer(ctx context.Context, testID, studentID, questionID string, optionIDs []string) (Attempt, error) {
	a, err := s.AttemptByStudent(ctx, testID, studentID)
	if err != nil {
		return Attempt{}, err
	}

	idx := -1
	for i, ans := range a.Answers {
		if ans.QuestionID == questionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Attempt{}, ErrQuestionNotFound
	}
	if optionIDs == nil {
		optionIDs = []string{}
	}
	a.Answers[idx].OptionIDs = optionIDs
	a.Started = true

	buf, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE test_attempts SET answers_json = $1, started = $2 WHERE id = $3`,
		string(buf), true, a.ID); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var a Attempt
	var ajson string
	if err := r.Scan(&a.ID, &a.TestID, &a.Started, &ajson, &a.Student.ID, &a.Student.Label); err != nil {
		return Attempt{}, err
	}
	if err := json.Unmarshal([]byte(ajson), &a.Answers); err != nil {
		return Attempt{}, err
	}
	return a, nil
}
