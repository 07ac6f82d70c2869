package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
)

type groupView struct {
	ID       string       `json:"_id"`
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Active   bool         `json:"active"`
	Students []userView   `json:"students,omitempty"`
	Courses  []courseView `json:"courses,omitempty"`
}

// GET /api/groups: all groups, members stripped.
func ListGroupsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(),
			`SELECT id, code, name, active FROM groups ORDER BY name, code`)
		if err != nil {
			internalError(w, err)
			return
		}
		defer rows.Close()

		out := []groupView{}
		for rows.Next() {
			var g groupView
			if err := rows.Scan(&g.ID, &g.Code, &g.Name, &g.Active); err != nil {
				internalError(w, err)
				return
			}
			out = append(out, g)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/groups/{code}: one group with its students and courses.
func GetGroupHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := normCode(chi.URLParam(r, "code"))

		g, err := groupByCode(r.Context(), db, code)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"group"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		students, err := groupStudents(r.Context(), db, g.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		g.Students = students

		courses, err := queryCourses(r.Context(), db, `WHERE c.group_id = $1`, g.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		g.Courses = courses

		writeJSON(w, http.StatusOK, g)
	}
}

// POST /api/groups: admin creates a group; the member list is filtered down
// to existing users holding the student role, duplicates collapsed.
func CreateGroupHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code     string    `json:"code"`
			Name     string    `json:"name"`
			Students *[]string `json:"students"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		missing := []string{}
		if req.Name == "" {
			missing = append(missing, "name")
		}
		if req.Code == "" {
			missing = append(missing, "code")
		}
		if len(missing) > 0 {
			requiredFields(w, missing)
			return
		}

		code := normCode(req.Code)
		var exists int
		err := db.QueryRowContext(r.Context(), `SELECT 1 FROM groups WHERE code = $1`, code).Scan(&exists)
		if err == nil {
			duplicate(w, []string{"code"})
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			internalError(w, err)
			return
		}

		var wanted []string
		if req.Students != nil {
			wanted = dedup(*req.Students)
		}
		members, err := existingStudents(r.Context(), db, wanted)
		if err != nil {
			internalError(w, err)
			return
		}

		g := groupView{ID: uuid.NewString(), Code: code, Name: req.Name, Active: true}
		if _, err := db.ExecContext(r.Context(),
			`INSERT INTO groups (id, code, name, active) VALUES ($1, $2, $3, $4)`,
			g.ID, g.Code, g.Name, true); err != nil {
			internalError(w, err)
			return
		}
		for _, sid := range members {
			if _, err := db.ExecContext(r.Context(),
				`INSERT INTO group_students (group_id, student_id) VALUES ($1, $2)`, g.ID, sid); err != nil {
				internalError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// PUT /api/groups/{code}: admin edits the name and code.
func EditGroupHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := normCode(chi.URLParam(r, "code"))

		var req struct {
			Code string `json:"code"`
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		newCode := normCode(req.Code)
		if newCode != "" && newCode != code {
			var exists int
			err := db.QueryRowContext(r.Context(), `SELECT 1 FROM groups WHERE code = $1`, newCode).Scan(&exists)
			if err == nil {
				duplicate(w, []string{"code"})
				return
			}
			if !errors.Is(err, sql.ErrNoRows) {
				internalError(w, err)
				return
			}
		}

		g, err := groupByCode(r.Context(), db, code)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"group"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		if req.Name != "" {
			g.Name = req.Name
		}
		if newCode != "" {
			g.Code = newCode
		}
		if _, err := db.ExecContext(r.Context(),
			`UPDATE groups SET code = $1, name = $2 WHERE id = $3`, g.Code, g.Name, g.ID); err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// PUT /api/groups/add-students/{code}: admin adds members; ids that are not
// existing students are silently skipped.
func AddStudentsToGroupHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := normCode(chi.URLParam(r, "code"))

		var req struct {
			Students *[]string `json:"students"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Students == nil {
			requiredFields(w, []string{"students"})
			return
		}

		g, err := groupByCode(r.Context(), db, code)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"group"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		members, err := existingStudents(r.Context(), db, dedup(*req.Students))
		if err != nil {
			internalError(w, err)
			return
		}
		for _, sid := range members {
			if _, err := db.ExecContext(r.Context(),
				`INSERT INTO group_students (group_id, student_id) VALUES ($1, $2)
				 ON CONFLICT (group_id, student_id) DO NOTHING`, g.ID, sid); err != nil {
				internalError(w, err)
				return
			}
		}

		students, err := groupStudents(r.Context(), db, g.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		g.Students = students
		writeJSON(w, http.StatusOK, g)
	}
}

// PUT /api/groups/remove-students/{code}
func RemoveStudentsFromGroupHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := normCode(chi.URLParam(r, "code"))

		var req struct {
			Students *[]string `json:"students"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Students == nil {
			requiredFields(w, []string{"students"})
			return
		}

		g, err := groupByCode(r.Context(), db, code)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"group"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		for _, sid := range dedup(*req.Students) {
			if _, err := db.ExecContext(r.Context(),
				`DELETE FROM group_students WHERE group_id = $1 AND student_id = $2`, g.ID, sid); err != nil {
				internalError(w, err)
				return
			}
		}

		students, err := groupStudents(r.Context(), db, g.ID)
		if err != nil {
			internalError(w, err)
			return
		}
		g.Students = students
		writeJSON(w, http.StatusOK, g)
	}
}

// ---------- shared lookups ----------

func groupByCode(ctx context.Context, db *sql.DB, code string) (groupView, error) {
	var g groupView
	err := db.QueryRowContext(ctx,
		`SELECT id, code, name, active FROM groups WHERE code = $1`, code).
		Scan(&g.ID, &g.Code, &g.Name, &g.Active)
	return g, err
}

func groupStudents(ctx context.Context, db *sql.DB, groupID string) ([]userView, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT u.id, u.email, u.label, u.role, u.active
		  FROM group_students gs
		  JOIN users u ON u.id = gs.student_id
		 WHERE gs.group_id = $1
		 ORDER BY u.label`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []userView{}
	for rows.Next() {
		var u userView
		if err := rows.Scan(&u.ID, &u.Email, &u.Label, &u.Role, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// existingStudents narrows ids down to users that exist and hold the student
// role.
func existingStudents(ctx context.Context, db *sql.DB, ids []string) ([]string, error) {
	out := []string{}
	for _, id := range ids {
		var exists int
		err := db.QueryRowContext(ctx,
			`SELECT 1 FROM users WHERE id = $1 AND role = $2`, id, rbac.RoleStudent).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func dedup(ids []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
