package http

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
)

// POST /api/dev/create-admin: bootstrap admin account for a fresh install.
// Mounted only when dev routes are enabled.
func CreateAdminHandler(db *sql.DB) http.HandlerFunc {
	const (
		email    = "admin@test.pl"
		password = "admin"
	)
	return func(w http.ResponseWriter, r *http.Request) {
		var exists int
		err := db.QueryRowContext(r.Context(), `SELECT 1 FROM users WHERE email = $1`, email).Scan(&exists)
		if err == nil {
			writeJSON(w, http.StatusConflict, map[string]string{
				"message": "There already is a test admin account",
			})
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			internalError(w, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			internalError(w, err)
			return
		}

		if _, err := db.ExecContext(r.Context(),
			`INSERT INTO users (id, email, label, role, password_hash, active) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), email, "Test Admin", rbac.RoleAdmin, string(hash), true); err != nil {
			internalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"message":  "Test admin account has been created!",
			"email":    email,
			"password": password,
		})
	}
}
