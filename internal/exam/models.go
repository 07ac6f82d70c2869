// Package exam holds the testing domain: reusable schemas of questions,
// scheduled tests created from them, and per-student attempts.
package exam

import "time"

type Option struct {
	ID      string `json:"_id"`
	Content string `json:"content"`
	Correct bool   `json:"correct,omitempty"`
}

type Question struct {
	ID      string   `json:"_id"`
	Content string   `json:"content"`
	Options []Option `json:"options"`
}

// Multiple reports whether more than one option is correct, i.e. the client
// should render the question as multi-choice.
func (q Question) Multiple() bool {
	n := 0
	for _, o := range q.Options {
		if o.Correct {
			n++
		}
	}
	return n > 1
}

// CorrectOptionIDs returns the ids of the options marked correct.
func (q Question) CorrectOptionIDs() []string {
	var ids []string
	for _, o := range q.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Public returns a copy safe to show while answers must stay hidden: option
// contents without the correct flags.
func (q Question) Public() Question {
	out := Question{ID: q.ID, Content: q.Content, Options: make([]Option, len(q.Options))}
	for i, o := range q.Options {
		out.Options[i] = Option{ID: o.ID, Content: o.Content}
	}
	return out
}

// Ref is a populated reference to another entity, label included.
type Ref struct {
	ID    string `json:"_id"`
	Label string `json:"label,omitempty"`
}

type SubjectRef struct {
	ID   string `json:"_id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Schema is a reusable named template of questions for a subject.
type Schema struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Author      Ref        `json:"author"`
	Subject     SubjectRef `json:"subject"`
	Questions   []Question `json:"questions"`
	Active      bool       `json:"active"`
}

type SchemaSummary struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Author      Ref        `json:"author"`
	Subject     SubjectRef `json:"subject"`
}

// Status is a test's derived temporal state. It is computed from the
// start/end window on every read and never stored.
type Status string

const (
	StatusPending  Status = "pending"
	StatusOngoing  Status = "ongoing"
	StatusFinished Status = "finished"
)

// StatusOf classifies a test window against the given instant. The finished
// check runs first, so a window that ends before it starts resolves to
// finished. End is inclusive (end == now is finished); start is exclusive
// (start == now is already ongoing).
func StatusOf(start, end, now time.Time) Status {
	if !end.After(now) {
		return StatusFinished
	}
	if now.Before(start) {
		return StatusPending
	}
	return StatusOngoing
}

// Test is a scheduled instance of a schema assigned to a course's students.
// Questions are a snapshot copied from the schema at creation time, not a
// live reference.
type Test struct {
	ID         string     `json:"_id"`
	SchemaID   string     `json:"testSchema"`
	CourseID   string     `json:"course"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	StudentIDs []string   `json:"students"`
	Questions  []Question `json:"questions,omitempty"`
}

func (t Test) Status(now time.Time) Status {
	return StatusOf(t.Start, t.End, now)
}

// TestSummary is the list-view shape: populated course and schema name,
// window, no questions.
type TestSummary struct {
	ID         string     `json:"_id"`
	Course     CourseRef  `json:"course"`
	SchemaName string     `json:"testSchema"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
}

type CourseRef struct {
	ID      string     `json:"_id"`
	Code    string     `json:"code"`
	Subject SubjectRef `json:"subject"`
}

// Answer is one per-question record of an attempt: the student's chosen
// option ids for that question. Empty until the student answers.
type Answer struct {
	QuestionID string   `json:"questionSchema"`
	OptionIDs  []string `json:"answer"`
}

// Attempt is one student's answer set for one test. One attempt is created
// per assigned student at test creation time, with empty answers.
type Attempt struct {
	ID      string   `json:"_id"`
	TestID  string   `json:"test,omitempty"`
	Student Ref      `json:"student"`
	Started bool     `json:"started"`
	Answers []Answer `json:"questions"`
}

// Answered counts the questions with a non-empty answer set.
func (a Attempt) Answered() int {
	n := 0
	for _, ans := range a.Answers {
		if len(ans.OptionIDs) > 0 {
			n++
		}
	}
	return n
}
