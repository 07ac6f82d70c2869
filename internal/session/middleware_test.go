package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

type fakeStore struct {
	sessions map[string]session.Session
}

func (s *fakeStore) Create(_ context.Context, userID string, expiry time.Time) (session.Session, error) {
	sess := session.Session{ID: "sess-" + userID, UserID: userID, Expiry: expiry}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := s.sessions[id]; !ok {
		return session.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *fakeStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeUsers struct {
	users map[string]session.User
}

func (u *fakeUsers) ByID(_ context.Context, id string) (session.User, error) {
	usr, ok := u.users[id]
	if !ok {
		return session.User{}, session.ErrNotFound
	}
	return usr, nil
}

func newGate(t *testing.T) (*fakeStore, http.Handler) {
	t.Helper()
	store := &fakeStore{sessions: map[string]session.Session{}}
	users := &fakeUsers{users: map[string]session.User{
		"u1": {ID: "u1", Email: "teacher@example.com", Label: "Teacher One", Role: "teacher", Active: true},
	}}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return store, session.Middleware(store, users)(inner)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	_, gate := newGate(t)

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest("GET", "/api/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestMiddleware_UnknownSession(t *testing.T) {
	_, gate := newGate(t)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set(session.Header, "no-such-session")
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestMiddleware_ExpiredSession(t *testing.T) {
	store, gate := newGate(t)
	store.sessions["sess-u1"] = session.Session{ID: "sess-u1", UserID: "u1", Expiry: time.Now().Add(-time.Minute)}

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set(session.Header, "sess-u1")
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["reason"] != "session_expired" {
		t.Fatalf("reason = %q, want session_expired", body["reason"])
	}
	// The gate reports, it does not purge.
	if _, ok := store.sessions["sess-u1"]; !ok {
		t.Fatalf("expired session was deleted by the gate")
	}
}

func TestMiddleware_ValidSession(t *testing.T) {
	store := &fakeStore{sessions: map[string]session.Session{
		"sess-u1": {ID: "sess-u1", UserID: "u1", Expiry: time.Now().Add(time.Hour)},
	}}
	users := &fakeUsers{users: map[string]session.User{
		"u1": {ID: "u1", Email: "teacher@example.com", Label: "Teacher One", Role: "teacher", Active: true},
	}}

	var seen session.User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = session.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	gate := session.Middleware(store, users)(inner)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set(session.Header, "sess-u1")
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen.ID != "u1" || seen.Role != "teacher" {
		t.Fatalf("context user = %+v, want u1/teacher", seen)
	}
}

func TestSessionExpiredBoundary(t *testing.T) {
	now := time.Now()
	s := session.Session{Expiry: now}
	if !s.Expired(now) {
		t.Fatalf("session expiring exactly now must count as expired")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Fatalf("session must still be valid one second before expiry")
	}
}
