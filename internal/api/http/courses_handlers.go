package http

import (
	"context"
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

type refView struct {
	ID    string `json:"_id"`
	Label string `json:"label"`
}

type codeRefView struct {
	ID   string `json:"_id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type courseView struct {
	ID      string      `json:"_id"`
	Code    string      `json:"code"`
	Active  bool        `json:"active"`
	Teacher refView     `json:"teacher"`
	Group   codeRefView `json:"group"`
	Subject codeRefView `json:"subject"`
}

// GET /api/courses: teacher/admin listing with populated refs.
func ListCoursesHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := queryCourses(r.Context(), db, ``)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /api/courses: admin creates a course binding group, subject and
// teacher together.
func CreateCourseHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code    string `json:"code"`
			Group   string `json:"group"`   // group code
			Subject string `json:"subject"` // subject code
			Teacher string `json:"teacher"` // user id
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		missing := []string{}
		if req.Code == "" {
			missing = append(missing, "code")
		}
		if req.Group == "" {
			missing = append(missing, "group")
		}
		if req.Subject == "" {
			missing = append(missing, "subject")
		}
		if req.Teacher == "" {
			missing = append(missing, "teacher")
		}
		if len(missing) > 0 {
			requiredFields(w, missing)
			return
		}

		missing = missing[:0]
		var groupID string
		err := db.QueryRowContext(r.Context(),
			`SELECT id FROM groups WHERE code = $1`, normCode(req.Group)).Scan(&groupID)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, "group")
		} else if err != nil {
			internalError(w, err)
			return
		}

		var subjectID string
		err = db.QueryRowContext(r.Context(),
			`SELECT id FROM subjects WHERE code = $1`, normCode(req.Subject)).Scan(&subjectID)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, "subject")
		} else if err != nil {
			internalError(w, err)
			return
		}

		var teacherID string
		err = db.QueryRowContext(r.Context(),
			`SELECT id FROM users WHERE id = $1 AND role = $2`, req.Teacher, rbac.RoleTeacher).Scan(&teacherID)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, "teacher")
		} else if err != nil {
			internalError(w, err)
			return
		}

		if len(missing) > 0 {
			notFound(w, missing)
			return
		}

		code := normCode(req.Code)
		var exists int
		err = db.QueryRowContext(r.Context(), `SELECT 1 FROM courses WHERE code = $1`, code).Scan(&exists)
		if err == nil {
			duplicate(w, []string{"code"})
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			internalError(w, err)
			return
		}

		id := uuid.NewString()
		if _, err := db.ExecContext(r.Context(),
			`INSERT INTO courses (id, code, group_id, teacher_id, subject_id, active) VALUES ($1, $2, $3, $4, $5, $6)`,
			id, code, groupID, teacherID, subjectID, true); err != nil {
			internalError(w, err)
			return
		}

		created, err := queryCourses(r.Context(), db, `WHERE c.id = $1`, id)
		if err != nil || len(created) == 0 {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, created[0])
	}
}

// GET /api/courses/my: courses of the groups the requester belongs to.
func MyCoursesHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())
		out, err := queryCourses(r.Context(), db, `
			WHERE c.group_id IN (SELECT group_id FROM group_students WHERE student_id = $1)`, user.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/courses/my-lead: courses the requester teaches.
func MyLeadCoursesHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())
		out, err := queryCourses(r.Context(), db, `WHERE c.teacher_id = $1`, user.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/courses/single/{code}: full course view. The leading teacher
// additionally gets every finished test with scored attempts; an enrolled
// student gets their own finished-test results.
func GetCourseHandler(db *sql.DB, store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.FromContext(r.Context())
		code := normCode(chi.URLParam(r, "code"))

		courses, err := queryCourses(r.Context(), db, `WHERE c.code = $1`, code)
		if err != nil {
			internalError(w, err)
			return
		}
		if len(courses) == 0 {
			notFound(w, []string{"course"})
			return
		}
		course := courses[0]

		students, err := groupStudents(r.Context(), db, course.Group.ID)
		if err != nil {
			internalError(w, err)
			return
		}

		resp := map[string]any{
			"_id":     course.ID,
			"code":    course.Code,
			"active":  course.Active,
			"teacher": course.Teacher,
			"subject": course.Subject,
			"group": map[string]any{
				"_id":      course.Group.ID,
				"code":     course.Group.Code,
				"name":     course.Group.Name,
				"students": students,
			},
			"my_access": "none",
		}

		now := time.Now()

		switch {
		case course.Teacher.ID == user.ID:
			resp["my_access"] = "teacher"

			finished, err := finishedCourseTests(r.Context(), store, course.ID, now)
			if err != nil {
				internalError(w, err)
				return
			}
			views := []map[string]any{}
			for _, t := range finished {
				attempts, err := store.AttemptsByTest(r.Context(), t.ID)
				if err != nil {
					internalError(w, err)
					return
				}
				scored := scoring.ScoreAttempts(attempts, t.Questions, false)
				views = append(views, map[string]any{
					"_id":      t.ID,
					"start":    t.Start,
					"end":      t.End,
					"status":   exam.StatusFinished,
					"attempts": scored,
				})
			}
			resp["finishedTests"] = views

		case user.Role == rbac.RoleStudent && containsUser(students, user.ID):
			resp["my_access"] = "student"

			finished, err := finishedCourseTests(r.Context(), store, course.ID, now)
			if err != nil {
				internalError(w, err)
				return
			}
			results := []map[string]any{}
			for _, t := range finished {
				attempt, err := store.AttemptByStudent(r.Context(), t.ID, user.ID)
				if errors.Is(err, exam.ErrAttemptNotFound) {
					continue
				}
				if err != nil {
					internalError(w, err)
					return
				}
				results = append(results, map[string]any{
					"_id":     t.ID,
					"start":   t.Start,
					"end":     t.End,
					"status":  exam.StatusFinished,
					"attempt": scoring.ScoreAttempt(attempt, t.Questions, false),
				})
			}
			resp["my_results"] = results
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func finishedCourseTests(ctx context.Context, store exam.Store, courseID string, now time.Time) ([]exam.Test, error) {
	summaries, err := store.ListTests(ctx, exam.TestListOpts{CourseID: courseID})
	if err != nil {
		return nil, err
	}
	out := []exam.Test{}
	for _, s := range summaries {
		if exam.StatusOf(s.Start, s.End, now) != exam.StatusFinished {
			continue
		}
		t, err := store.GetTest(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func containsUser(users []userView, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func queryCourses(ctx context.Context, db *sql.DB, where string, args ...any) ([]courseView, error) {
	q := `
		SELECT c.id, c.code, c.active,
		       t.id, t.label,
		       g.id, g.code, g.name,
		       s.id, s.code, s.name
		  FROM courses c
		  JOIN users t ON t.id = c.teacher_id
		  JOIN groups g ON g.id = c.group_id
		  JOIN subjects s ON s.id = c.subject_id `
	q += where + ` ORDER BY c.active DESC, c.code`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []courseView{}
	for rows.Next() {
		var c courseView
		if err := rows.Scan(&c.ID, &c.Code, &c.Active,
			&c.Teacher.ID, &c.Teacher.Label,
			&c.Group.ID, &c.Group.Code, &c.Group.Name,
			&c.Subject.ID, &c.Subject.Code, &c.Subject.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
