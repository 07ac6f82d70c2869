package exam_test

import (
	"testing"
	"time"

	"github.com/altrazmedia/sphinx-app-server/internal/exam"
)

func TestStatusOf(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	hour := time.Hour

	cases := []struct {
		name       string
		start, end time.Time
		want       exam.Status
	}{
		{"window in the future", now.Add(hour), now.Add(2 * hour), exam.StatusPending},
		{"window open", now.Add(-hour), now.Add(hour), exam.StatusOngoing},
		{"window passed", now.Add(-2 * hour), now.Add(-hour), exam.StatusFinished},
		{"starts exactly now", now, now.Add(hour), exam.StatusOngoing},
		{"ends exactly now", now.Add(-hour), now, exam.StatusFinished},
		{"ends before it starts", now.Add(hour), now.Add(-hour), exam.StatusFinished},
		{"zero-length window at now", now, now, exam.StatusFinished},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exam.StatusOf(tc.start, tc.end, now); got != tc.want {
				t.Fatalf("StatusOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAttemptAnswered(t *testing.T) {
	a := exam.Attempt{Answers: []exam.Answer{
		{QuestionID: "q1", OptionIDs: []string{"a"}},
		{QuestionID: "q2", OptionIDs: []string{}},
		{QuestionID: "q3", OptionIDs: nil},
		{QuestionID: "q4", OptionIDs: []string{"b", "c"}},
	}}
	if got := a.Answered(); got != 2 {
		t.Fatalf("Answered = %d, want 2", got)
	}
}

func TestQuestionHelpers(t *testing.T) {
	q := exam.Question{
		ID:      "q1",
		Content: "pick two",
		Options: []exam.Option{
			{ID: "a", Content: "first", Correct: true},
			{ID: "b", Content: "second"},
			{ID: "c", Content: "third", Correct: true},
		},
	}

	if !q.Multiple() {
		t.Fatalf("expected Multiple for two correct options")
	}
	if got := q.CorrectOptionIDs(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("CorrectOptionIDs = %v, want [a c]", got)
	}

	pub := q.Public()
	for _, o := range pub.Options {
		if o.Correct {
			t.Fatalf("Public leaked the correct flag on option %s", o.ID)
		}
	}
	// The source question must stay untouched.
	if !q.Options[0].Correct {
		t.Fatalf("Public mutated the source question")
	}

	single := exam.Question{Options: []exam.Option{{ID: "a", Correct: true}, {ID: "b"}}}
	if single.Multiple() {
		t.Fatalf("did not expect Multiple for one correct option")
	}
}
