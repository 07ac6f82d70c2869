package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/altrazmedia/sphinx-app-server/internal/exam"
	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
	"github.com/altrazmedia/sphinx-app-server/internal/scoring"
	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

// POST /api/tests: teacher schedules a test from a schema. The student list
// defaults to the course group's full roster, the question list to the full
// schema; both may be narrowed by the request. Schema and course must share a
// subject, and only the course's own teacher may create the test.
func CreateTestHandler(db *sql.DB, store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())

		var req struct {
			Schema    string    `json:"schema"` // TestSchema id
			Course    string    `json:"course"` // course code
			Students  *[]string `json:"students"`
			Questions *[]string `json:"questions"`
			Start     string    `json:"start"`
			End       string    `json:"end"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		missing := []string{}
		if req.Schema == "" {
			missing = append(missing, "schema")
		}
		if req.Course == "" {
			missing = append(missing, "course")
		}
		var start, end time.Time
		var err error
		if req.Start != "" {
			if start, err = time.Parse(time.RFC3339, req.Start); err != nil {
				missing = append(missing, "start")
			}
		}
		if req.End == "" {
			missing = append(missing, "end")
		} else if end, err = time.Parse(time.RFC3339, req.End); err != nil {
			missing = append(missing, "end")
		}
		if len(missing) > 0 {
			requiredFields(w, missing)
			return
		}

		notfound := []string{}
		courses, err := queryCourses(r.Context(), db, `WHERE c.code = $1`, normCode(req.Course))
		if err != nil {
			internalError(w, err)
			return
		}
		if len(courses) == 0 {
			notfound = append(notfound, "course")
		}

		sc, err := store.GetSchema(r.Context(), req.Schema)
		if errors.Is(err, exam.ErrSchemaNotFound) {
			notfound = append(notfound, "schema")
		} else if err != nil {
			internalError(w, err)
			return
		}

		if len(notfound) > 0 {
			notFound(w, notfound)
			return
		}
		course := courses[0]

		if course.Subject.ID != sc.Subject.ID {
			notFoundReason(w, []string{"schema"}, "subject_mismatch",
				"Test schema subject has to match a course subject")
			return
		}

		if course.Teacher.ID != user.ID {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		roster, err := groupStudents(r.Context(), db, course.Group.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		students := []string{}
		for _, s := range roster {
			if req.Students == nil || containsID(*req.Students, s.ID) {
				students = append(students, s.ID)
			}
		}

		questions := []exam.Question{}
		for _, q := range sc.Questions {
			if req.Questions == nil || containsID(*req.Questions, q.ID) {
				questions = append(questions, q)
			}
		}

		if start.IsZero() {
			start = time.Now()
		}

		t := exam.Test{
			ID:         uuid.NewString(),
			SchemaID:   sc.ID,
			CourseID:   course.ID,
			Start:      start,
			End:        end,
			StudentIDs: students,
			Questions:  questions,
		}
		if err := store.CreateTest(r.Context(), t); err != nil {
			internalError(w, err)
			return
		}

		attempts, err := store.AttemptsByTest(r.Context(), t.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"_id":        t.ID,
			"testSchema": t.SchemaID,
			"course":     course,
			"start":      t.Start,
			"end":        t.End,
			"status":     t.Status(time.Now()),
			"students":   t.StudentIDs,
			"questions":  t.Questions,
			"attempts":   attempts,
		})
	}
}

// GET /api/tests/single/{id}: role-dependent view. The leading teacher sees
// every attempt (scored once the test is finished). An assigned student sees
// their own attempt with the question texts; correct flags and the verdict
// appear only after the test finishes.
func GetTestHandler(db *sql.DB, store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())
		id := chi.URLParam(r, "id")

		t, err := store.GetTest(r.Context(), id)
		if errors.Is(err, exam.ErrTestNotFound) {
			notFound(w, []string{"test"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		courses, err := queryCourses(r.Context(), db, `WHERE c.id = $1`, t.CourseID)
		if err != nil || len(courses) == 0 {
			internalError(w, err)
			return
		}
		course := courses[0]

		sc, err := store.GetSchema(r.Context(), t.SchemaID)
		if err != nil {
			internalError(w, err)
			return
		}

		now := time.Now()
		status := t.Status(now)

		resp := map[string]any{
			"_id": t.ID,
			"testSchema": map[string]any{
				"_id":         sc.ID,
				"name":        sc.Name,
				"description": sc.Description,
			},
			"course":    course,
			"start":     t.Start,
			"end":       t.End,
			"status":    status,
			"my_access": "none",
		}

		switch {
		case course.Teacher.ID == user.ID:
			resp["my_access"] = "teacher"
			resp["students"] = t.StudentIDs
			resp["questions"] = t.Questions

			attempts, err := store.AttemptsByTest(r.Context(), t.ID)
			if err != nil {
				internalError(w, err)
				return
			}
			if status == exam.StatusFinished {
				resp["attempts"] = scoring.ScoreAttempts(attempts, t.Questions, false)
			} else {
				resp["attempts"] = attempts
			}

		case user.Role == rbac.RoleStudent:
			if !containsID(t.StudentIDs, user.ID) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			resp["my_access"] = "student"

			if status == exam.StatusOngoing || status == exam.StatusFinished {
				attempt, err := store.AttemptByStudent(r.Context(), t.ID, user.ID)
				if err != nil {
					internalError(w, err)
					return
				}
				resp["my_attempt"] = studentAttemptView(attempt, t.Questions, status)
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// studentAttemptView joins the attempt's answer records with the question
// texts. Correct flags and verdicts are withheld until the test finishes.
func studentAttemptView(a exam.Attempt, questions []exam.Question, status exam.Status) map[string]any {
	byID := make(map[string]exam.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	finished := status == exam.StatusFinished

	records := make([]map[string]any, len(a.Answers))
	correctAnswers := 0
	for i, ans := range a.Answers {
		rec := map[string]any{
			"questionSchema": ans.QuestionID,
			"answer":         ans.OptionIDs,
		}
		if q, ok := byID[ans.QuestionID]; ok {
			if finished {
				rec["content"] = q.Content
				rec["options"] = q.Options
				correct := scoring.IsAnswerCorrect(ans.OptionIDs, q.CorrectOptionIDs())
				rec["correct"] = correct
				if correct {
					correctAnswers++
				}
			} else {
				pub := q.Public()
				rec["content"] = pub.Content
				rec["options"] = pub.Options
			}
		}
		records[i] = rec
	}

	view := map[string]any{
		"_id":       a.ID,
		"student":   a.Student,
		"started":   a.Started,
		"questions": records,
		"answered":  a.Answered(),
	}
	if finished {
		view["correctAnswers"] = correctAnswers
		if total := len(a.Answers); total > 0 {
			view["score"] = scoring.Trunc2(float64(correctAnswers) / float64(total) * 100)
		} else {
			view["score"] = 0.0
		}
	}
	return view
}

// GET /api/tests/my?course={code}: tests the requester is attending, with
// progress counts while ongoing and correctness counts once finished.
func MyTestsHandler(db *sql.DB, store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())

		opts := exam.TestListOpts{StudentID: user.ID}
		if code := r.URL.Query().Get("course"); code != "" {
			var courseID string
			err := db.QueryRowContext(r.Context(),
				`SELECT id FROM courses WHERE code = $1`, normCode(code)).Scan(&courseID)
			if errors.Is(err, sql.ErrNoRows) {
				notFound(w, []string{"course"})
				return
			}
			if err != nil {
				internalError(w, err)
				return
			}
			opts.CourseID = courseID
		}

		summaries, err := store.ListTests(r.Context(), opts)
		if err != nil {
			internalError(w, err)
			return
		}

		now := time.Now()
		out := []map[string]any{}
		for _, s := range summaries {
			status := exam.StatusOf(s.Start, s.End, now)
			view := map[string]any{
				"_id":        s.ID,
				"course":     s.Course,
				"testSchema": map[string]any{"name": s.SchemaName},
				"start":      s.Start,
				"end":        s.End,
				"status":     status,
			}

			if status == exam.StatusOngoing || status == exam.StatusFinished {
				attempt, err := store.AttemptByStudent(r.Context(), s.ID, user.ID)
				if err != nil {
					internalError(w, err)
					return
				}
				view["questionsQuantity"] = len(attempt.Answers)
				if status == exam.StatusOngoing {
					view["questionsAnswered"] = attempt.Answered()
				} else {
					t, err := store.GetTest(r.Context(), s.ID)
					if err != nil {
						internalError(w, err)
						return
					}
					scored := scoring.ScoreAttempt(attempt, t.Questions, false)
					view["validAnswers"] = scored.CorrectAnswers
				}
			}
			out = append(out, view)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/tests/my-lead?course={code}: tests of the courses the requester
// teaches.
func MyLeadTestsHandler(db *sql.DB, store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())

		opts := exam.TestListOpts{}
		if code := r.URL.Query().Get("course"); code != "" {
			var courseID string
			err := db.QueryRowContext(r.Context(),
				`SELECT id FROM courses WHERE code = $1 AND teacher_id = $2`,
				normCode(code), user.ID).Scan(&courseID)
			if errors.Is(err, sql.ErrNoRows) {
				notFound(w, []string{"course"})
				return
			}
			if err != nil {
				internalError(w, err)
				return
			}
			opts.CourseID = courseID
		} else {
			rows, err := db.QueryContext(r.Context(),
				`SELECT id FROM courses WHERE teacher_id = $1`, user.ID)
			if err != nil {
				internalError(w, err)
				return
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					internalError(w, err)
					return
				}
				opts.CourseIDs = append(opts.CourseIDs, id)
			}
			if len(opts.CourseIDs) == 0 {
				writeJSON(w, http.StatusOK, []any{})
				return
			}
		}

		summaries, err := store.ListTests(r.Context(), opts)
		if err != nil {
			internalError(w, err)
			return
		}

		now := time.Now()
		out := []map[string]any{}
		for _, s := range summaries {
			out = append(out, map[string]any{
				"_id":        s.ID,
				"course":     s.Course,
				"testSchema": map[string]any{"name": s.SchemaName},
				"start":      s.Start,
				"end":        s.End,
				"status":     exam.StatusOf(s.Start, s.End, now),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PUT /api/tests/answer/{testID}/{questionID}: student submits the full
// answer for one question, replacing any prior one. Allowed only while the
// test is ongoing.
func AnswerQuestionHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())
		testID := chi.URLParam(r, "testID")
		questionID := chi.URLParam(r, "questionID")

		var req struct {
			Answer *[]string `json:"answer"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Answer == nil {
			requiredFields(w, []string{"answer"})
			return
		}

		t, err := store.GetTest(r.Context(), testID)
		if errors.Is(err, exam.ErrTestNotFound) {
			notFound(w, []string{"test"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		if t.Status(time.Now()) != exam.StatusOngoing {
			writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "test_not_ongoing"})
			return
		}

		attempt, err := store.SaveAnswer(r.Context(), testID, user.ID, questionID, *req.Answer)
		if err != nil {
			switch {
			case errors.Is(err, exam.ErrAttemptNotFound):
				notFound(w, []string{"test"})
			case errors.Is(err, exam.ErrQuestionNotFound):
				notFound(w, []string{"question"})
			default:
				internalError(w, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
