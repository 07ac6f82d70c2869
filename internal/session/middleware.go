package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Header carries the opaque session id on every authenticated request.
const Header = "Session-Id"

// Middleware is the auth gate. It rejects requests with a missing or unknown
// session id (401, empty body) and with an expired one (401 with a reason the
// client can tell apart). On success the resolved user lands in the request
// context. The gate never deletes anything, expired sessions included.
func Middleware(store Store, users Users) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if id == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			sess, err := store.Get(r.Context(), id)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			if sess.Expired(time.Now()) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"reason": "session_expired"})
				return
			}

			user, err := users.ByID(r.Context(), sess.UserID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
