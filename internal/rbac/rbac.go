// Package rbac is the role gate shared by all protected routes.
package rbac

import (
	"encoding/json"
	"net/http"

	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Roles is every role a user may hold.
var Roles = []string{RoleStudent, RoleTeacher, RoleAdmin}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Require accepts the request iff the authenticated user's role is one of the
// given roles (OR semantics). A rejection lists the required roles so the
// caller can see what would have been accepted.
func Require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := session.FromContext(r.Context())
			if !ok || !allowed(user.Role, roles) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string][]string{"required_roles": roles})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowed(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
