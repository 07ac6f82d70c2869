package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

// POST /api/session  { "email": "...", "password": "..." }
func LoginHandler(db *sql.DB, store session.Store, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		missing := []string{}
		if req.Email == "" {
			missing = append(missing, "email")
		}
		if req.Password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			requiredFields(w, missing)
			return
		}

		var userID, hash string
		err := db.QueryRowContext(r.Context(),
			`SELECT id, password_hash FROM users WHERE email = $1`, req.Email).Scan(&userID, &hash)
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"message": "Wrong credentials", "reason": "wrong_credentials",
			})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"message": "Wrong credentials", "reason": "wrong_credentials",
			})
			return
		}

		sess, err := store.Create(r.Context(), userID, time.Now().Add(ttl))
		if err != nil {
			internalError(w, err)
			return
		}

		// Session marshals to {"session_id", "expiry"}; the user id stays out.
		writeJSON(w, http.StatusOK, sess)
	}
}

// DELETE /api/session: logging out removes the session.
func LogoutHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(session.Header)
		if err := store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				notFound(w, []string{"session"})
				return
			}
			internalError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GET /api/session/check/{sessionID}: public validity probe. 204 when the
// session exists and has not expired, 400 otherwise.
func CheckSessionHandler(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		sess, err := store.Get(r.Context(), id)
		if err != nil || sess.Expired(time.Now()) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/me: the authenticated user's public fields.
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := session.FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
