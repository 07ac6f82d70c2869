package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
)

const bcryptCost = 10

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type userView struct {
	ID     string `json:"_id"`
	Email  string `json:"email"`
	Label  string `json:"label"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// GET /api/users: all users sorted by label, passwords never included.
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(),
			`SELECT id, email, label, role, active FROM users ORDER BY label`)
		if err != nil {
			internalError(w, err)
			return
		}
		defer rows.Close()

		out := []userView{}
		for rows.Next() {
			var u userView
			if err := rows.Scan(&u.ID, &u.Email, &u.Label, &u.Role, &u.Active); err != nil {
				internalError(w, err)
				return
			}
			out = append(out, u)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/users/{id}
func GetUserHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var u userView
		err := db.QueryRowContext(r.Context(),
			`SELECT id, email, label, role, active FROM users WHERE id = $1`, id).
			Scan(&u.ID, &u.Email, &u.Label, &u.Role, &u.Active)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"user"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// POST /api/users: admin creates an account.
func CreateUserHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Label    string `json:"label"`
			Role     string `json:"role"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		missing := []string{}
		if !emailRe.MatchString(req.Email) {
			missing = append(missing, "email")
		}
		if req.Label == "" {
			missing = append(missing, "label")
		}
		if req.Password == "" {
			missing = append(missing, "password")
		}
		if req.Role == "" {
			missing = append(missing, "role")
		}
		if len(missing) > 0 {
			requiredFields(w, missing)
			return
		}

		structure := []structureError{}
		if len(req.Password) < 5 || len(req.Password) > 50 {
			structure = append(structure, structureError{
				Field: "password", Type: "string", MinLength: 5, MaxLength: 50,
			})
		}
		if len(req.Label) < 3 || len(req.Label) > 40 {
			structure = append(structure, structureError{
				Field: "label", Type: "string", MinLength: 3, MaxLength: 40,
			})
		}
		if !rbac.ValidRole(req.Role) {
			structure = append(structure, structureError{
				Field: "role", Type: "string", Enum: rbac.Roles,
			})
		}
		if len(structure) > 0 {
			invalidStructure(w, structure)
			return
		}

		var exists int
		err := db.QueryRowContext(r.Context(),
			`SELECT 1 FROM users WHERE email = $1`, req.Email).Scan(&exists)
		if err == nil {
			duplicate(w, []string{"email"})
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			internalError(w, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			internalError(w, err)
			return
		}

		u := userView{ID: uuid.NewString(), Email: req.Email, Label: req.Label, Role: req.Role, Active: true}
		if _, err := db.ExecContext(r.Context(),
			`INSERT INTO users (id, email, label, role, password_hash, active) VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID, u.Email, u.Label, u.Role, string(hash), true); err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
