package rbac_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

func serveAs(t *testing.T, gate func(http.Handler) http.Handler, role string) *httptest.ResponseRecorder {
	t.Helper()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/api/groups", nil)
	if role != "" {
		u := session.User{ID: "u1", Role: role, Active: true}
		req = req.WithContext(session.WithUser(req.Context(), u))
	}
	rec := httptest.NewRecorder()
	gate(inner).ServeHTTP(rec, req)
	return rec
}

func TestRequire_AcceptsAnyListedRole(t *testing.T) {
	gate := rbac.Require(rbac.RoleTeacher, rbac.RoleAdmin)

	for _, role := range []string{rbac.RoleTeacher, rbac.RoleAdmin} {
		if rec := serveAs(t, gate, role); rec.Code != http.StatusNoContent {
			t.Fatalf("role %s: status = %d, want 204", role, rec.Code)
		}
	}
}

func TestRequire_RejectsOtherRoles(t *testing.T) {
	gate := rbac.Require(rbac.RoleTeacher, rbac.RoleAdmin)

	rec := serveAs(t, gate, rbac.RoleStudent)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := []string{rbac.RoleTeacher, rbac.RoleAdmin}
	got := body["required_roles"]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("required_roles = %v, want %v", got, want)
	}
}

func TestRequire_RejectsMissingUser(t *testing.T) {
	gate := rbac.Require(rbac.RoleAdmin)
	if rec := serveAs(t, gate, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range rbac.Roles {
		if !rbac.ValidRole(role) {
			t.Fatalf("expected %q valid", role)
		}
	}
	if rbac.ValidRole("superuser") {
		t.Fatalf("did not expect superuser to be a valid role")
	}
}
