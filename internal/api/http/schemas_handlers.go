package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/altrazmedia/sphinx-app-server/internal/exam"
	"github.com/altrazmedia/sphinx-app-server/internal/scoring"
	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

// GET /api/testsSchemas?subject={subjectID}
func ListSchemasHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListSchemas(r.Context(), exam.SchemaListOpts{
			SubjectID: r.URL.Query().Get("subject"),
		})
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type questionInput struct {
	Content string `json:"content"`
	Options []struct {
		Content string `json:"content"`
		Correct *bool  `json:"correct"`
	} `json:"options"`
}

// POST /api/testsSchemas: teacher creates a reusable template. Every
// question needs content, typed options and at least one correct option;
// offenders are reported as question-N (1-based).
func CreateSchemaHandler(db *sql.DB, store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())

		var req struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Subject     string          `json:"subject"` // subject code
			Questions   []questionInput `json:"questions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		missing := []string{}
		if req.Name == "" {
			missing = append(missing, "name")
		}
		if req.Subject == "" {
			missing = append(missing, "subject")
		}
		for _, n := range invalidQuestions(req.Questions) {
			missing = append(missing, fmt.Sprintf("question-%d", n))
		}
		if len(missing) > 0 {
			requiredFields(w, missing)
			return
		}

		var subject exam.SubjectRef
		err := db.QueryRowContext(r.Context(),
			`SELECT id, code, name FROM subjects WHERE code = $1`, normCode(req.Subject)).
			Scan(&subject.ID, &subject.Code, &subject.Name)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"subject"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		questions := make([]exam.Question, len(req.Questions))
		for i, in := range req.Questions {
			q := exam.Question{ID: uuid.NewString(), Content: in.Content}
			for _, opt := range in.Options {
				q.Options = append(q.Options, exam.Option{
					ID:      uuid.NewString(),
					Content: opt.Content,
					Correct: opt.Correct != nil && *opt.Correct,
				})
			}
			questions[i] = q
		}

		sc := exam.Schema{
			ID:          uuid.NewString(),
			Name:        req.Name,
			Description: req.Description,
			Author:      exam.Ref{ID: user.ID, Label: user.Label},
			Subject:     subject,
			Questions:   questions,
			Active:      true,
		}
		if err := store.PutSchema(r.Context(), sc); err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	}
}

// invalidQuestions returns the 1-based numbers of questions failing
// validation: missing content, no options, an untyped option, or no option
// marked correct.
func invalidQuestions(questions []questionInput) []int {
	var bad []int
	for i, q := range questions {
		if q.Content == "" || len(q.Options) == 0 {
			bad = append(bad, i+1)
			continue
		}
		hasCorrect := false
		valid := true
		for _, opt := range q.Options {
			if opt.Content == "" || opt.Correct == nil {
				valid = false
				break
			}
			if *opt.Correct {
				hasCorrect = true
			}
		}
		if !valid || !hasCorrect {
			bad = append(bad, i+1)
		}
	}
	return bad
}

// GET /api/testsSchemas/{id}: the template with usage statistics, i.e. how often
// each question was asked and answered correctly, per-test and global
// averages, total attempt count.
func GetSchemaHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sc, err := store.GetSchema(r.Context(), id)
		if errors.Is(err, exam.ErrSchemaNotFound) {
			notFound(w, []string{"testSchema"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		tests, err := store.ListTests(r.Context(), exam.TestListOpts{SchemaID: id})
		if err != nil {
			internalError(w, err)
			return
		}

		now := time.Now()
		allScored := []scoring.ScoredAttempt{}
		testViews := []map[string]any{}
		for _, t := range tests {
			if exam.StatusOf(t.Start, t.End, now) != exam.StatusFinished {
				continue
			}
			attempts, err := store.AttemptsByTest(r.Context(), t.ID)
			if err != nil {
				internalError(w, err)
				return
			}
			scored := scoring.ScoreAttempts(attempts, sc.Questions, true)
			allScored = append(allScored, scored...)

			testViews = append(testViews, map[string]any{
				"_id":          t.ID,
				"course":       t.Course,
				"start":        t.Start,
				"end":          t.End,
				"status":       exam.StatusFinished,
				"averageScore": scoring.Average(scored),
			})
		}

		stats := scoring.AggregateSchema(allScored)

		questions := make([]map[string]any, len(sc.Questions))
		for i, q := range sc.Questions {
			qs := stats.Questions[q.ID]
			questions[i] = map[string]any{
				"_id":               q.ID,
				"content":           q.Content,
				"options":           q.Options,
				"multiple":          q.Multiple(),
				"asked":             qs.Asked,
				"answeredCorrectly": qs.AnsweredCorrectly,
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"_id":           sc.ID,
			"name":          sc.Name,
			"description":   sc.Description,
			"author":        sc.Author,
			"subject":       sc.Subject,
			"active":        sc.Active,
			"questions":     questions,
			"tests":         testViews,
			"totalAttempts": stats.TotalAttempts,
			"averageScore":  stats.AverageScore,
		})
	}
}
