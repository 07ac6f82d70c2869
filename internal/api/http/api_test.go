package http_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	api "github.com/altrazmedia/sphinx-app-server/internal/api/http"
	"github.com/altrazmedia/sphinx-app-server/internal/db"
	"github.com/altrazmedia/sphinx-app-server/internal/exam"
	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

// newTestServer wires the API the same way cmd/server does, on an in-memory
// sqlite database.
func newTestServer(t *testing.T, name string) (*httptest.Server, *sql.DB) {
	t.Helper()

	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	sessions := session.NewSQLStore(dbh)
	users := session.NewSQLUsers(dbh)
	store := exam.NewSQLStore(dbh)
	auth := session.Middleware(sessions, users)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", api.LoginHandler(dbh, sessions, time.Hour))
		r.Get("/session/check/{sessionID}", api.CheckSessionHandler(sessions))
		r.Post("/dev/create-admin", api.CreateAdminHandler(dbh))

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Delete("/session", api.LogoutHandler(sessions))
			r.Get("/me", api.MeHandler())

			r.Get("/users", api.ListUsersHandler(dbh))
			r.Get("/users/{id}", api.GetUserHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/users", api.CreateUserHandler(dbh))

			r.Get("/subjects", api.ListSubjectsHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/subjects", api.CreateSubjectHandler(dbh))

			r.With(rbac.Require(rbac.RoleAdmin)).Post("/groups", api.CreateGroupHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/courses", api.CreateCourseHandler(dbh))
			r.Get("/courses/single/{code}", api.GetCourseHandler(dbh, store))

			r.With(rbac.Require(rbac.RoleTeacher)).Post("/testsSchemas", api.CreateSchemaHandler(dbh, store))
			r.With(rbac.Require(rbac.RoleTeacher)).Get("/testsSchemas/{id}", api.GetSchemaHandler(store))

			r.With(rbac.Require(rbac.RoleTeacher)).Post("/tests", api.CreateTestHandler(dbh, store))
			r.Get("/tests/single/{id}", api.GetTestHandler(dbh, store))
			r.Get("/tests/my", api.MyTestsHandler(dbh, store))
			r.With(rbac.Require(rbac.RoleStudent)).
				Put("/tests/answer/{testID}/{questionID}", api.AnswerQuestionHandler(store))
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, dbh
}

func call(t *testing.T, srv *httptest.Server, method, path, sessionID string, body any) (int, map[string]any) {
	t.Helper()
	code, raw := callRaw(t, srv, method, path, sessionID, body)
	if len(raw) == 0 {
		return code, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
	}
	return code, out
}

func callRaw(t *testing.T, srv *httptest.Server, method, path, sessionID string, body any) (int, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if sessionID != "" {
		req.Header.Set(session.Header, sessionID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func login(t *testing.T, srv *httptest.Server, email, password string) string {
	t.Helper()
	code, body := call(t, srv, "POST", "/api/session", "", map[string]string{
		"email": email, "password": password,
	})
	if code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body %v", email, code, body)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("login %s: no session_id in %v", email, body)
	}
	return id
}

func TestAPI_FullFlow(t *testing.T) {
	srv, dbh := newTestServer(t, "api_full_flow")

	// Bootstrap admin; the second call must refuse.
	if code, _ := call(t, srv, "POST", "/api/dev/create-admin", "", nil); code != http.StatusOK {
		t.Fatalf("create-admin: status = %d", code)
	}
	if code, _ := call(t, srv, "POST", "/api/dev/create-admin", "", nil); code != http.StatusConflict {
		t.Fatalf("second create-admin: status = %d, want 409", code)
	}

	// Wrong password and unknown account look the same.
	code, body := call(t, srv, "POST", "/api/session", "", map[string]string{
		"email": "admin@test.pl", "password": "nope",
	})
	if code != http.StatusBadRequest || body["reason"] != "wrong_credentials" {
		t.Fatalf("wrong password: %d %v", code, body)
	}

	admin := login(t, srv, "admin@test.pl", "admin")

	// Admin sets the world up.
	code, teacher := call(t, srv, "POST", "/api/users", admin, map[string]string{
		"email": "teacher@example.com", "label": "Teacher One", "password": "secret", "role": "teacher",
	})
	if code != http.StatusOK {
		t.Fatalf("create teacher: %d %v", code, teacher)
	}
	code, student := call(t, srv, "POST", "/api/users", admin, map[string]string{
		"email": "student@example.com", "label": "Student One", "password": "secret", "role": "student",
	})
	if code != http.StatusOK {
		t.Fatalf("create student: %d %v", code, student)
	}
	studentID, _ := student["_id"].(string)
	teacherID, _ := teacher["_id"].(string)

	if code, body = call(t, srv, "POST", "/api/subjects", admin, map[string]string{
		"code": "MATH", "name": "Mathematics",
	}); code != http.StatusOK {
		t.Fatalf("create subject: %d %v", code, body)
	}
	if body["code"] != "math" {
		t.Fatalf("subject code not normalized: %v", body["code"])
	}
	if code, body = call(t, srv, "POST", "/api/subjects", admin, map[string]string{
		"code": "bio", "name": "Biology",
	}); code != http.StatusOK {
		t.Fatalf("create subject: %d %v", code, body)
	}

	if code, body = call(t, srv, "POST", "/api/groups", admin, map[string]any{
		"code": "g1", "name": "Group One", "students": []string{studentID},
	}); code != http.StatusOK {
		t.Fatalf("create group: %d %v", code, body)
	}
	if code, body = call(t, srv, "POST", "/api/courses", admin, map[string]string{
		"code": "math-g1", "group": "g1", "subject": "math", "teacher": teacherID,
	}); code != http.StatusOK {
		t.Fatalf("create course: %d %v", code, body)
	}

	studentSess := login(t, srv, "student@example.com", "secret")
	teacherSess := login(t, srv, "teacher@example.com", "secret")

	// The role gate refuses a student and names what it wanted.
	code, body = call(t, srv, "POST", "/api/users", studentSess, map[string]string{})
	if code != http.StatusForbidden {
		t.Fatalf("student created a user: %d", code)
	}
	if roles, ok := body["required_roles"].([]any); !ok || len(roles) != 1 || roles[0] != "admin" {
		t.Fatalf("required_roles = %v", body["required_roles"])
	}

	// A schema with an untyped option is rejected with the question number.
	code, body = call(t, srv, "POST", "/api/testsSchemas", teacherSess, map[string]any{
		"name": "Bad", "subject": "math",
		"questions": []map[string]any{{
			"content": "q",
			"options": []map[string]any{{"content": "a"}},
		}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("invalid schema accepted: %d %v", code, body)
	}
	if req, ok := body["required"].([]any); !ok || len(req) != 1 || req[0] != "question-1" {
		t.Fatalf("required = %v", body["required"])
	}

	// A valid schema: one two-option question and one single-option question.
	code, schema := call(t, srv, "POST", "/api/testsSchemas", teacherSess, map[string]any{
		"name": "Fractions", "subject": "math",
		"questions": []map[string]any{
			{"content": "Pick both halves", "options": []map[string]any{
				{"content": "1/2", "correct": true},
				{"content": "2/4", "correct": true},
				{"content": "1/3", "correct": false},
			}},
			{"content": "Pick a third", "options": []map[string]any{
				{"content": "1/3", "correct": true},
				{"content": "1/4", "correct": false},
			}},
		},
	})
	if code != http.StatusOK {
		t.Fatalf("create schema: %d %v", code, schema)
	}
	schemaID, _ := schema["_id"].(string)

	type option struct {
		ID      string
		Correct bool
	}
	questions := schema["questions"].([]any)
	questionIDs := make([]string, len(questions))
	optionsOf := make([][]option, len(questions))
	for i, q := range questions {
		qm := q.(map[string]any)
		questionIDs[i] = qm["_id"].(string)
		for _, o := range qm["options"].([]any) {
			om := o.(map[string]any)
			correct, _ := om["correct"].(bool)
			optionsOf[i] = append(optionsOf[i], option{ID: om["_id"].(string), Correct: correct})
		}
	}
	correctOf := func(i int) []string {
		var ids []string
		for _, o := range optionsOf[i] {
			if o.Correct {
				ids = append(ids, o.ID)
			}
		}
		return ids
	}
	wrongOf := func(i int) string {
		for _, o := range optionsOf[i] {
			if !o.Correct {
				return o.ID
			}
		}
		t.Fatalf("question %d has no wrong option", i)
		return ""
	}

	end := time.Now().Add(time.Hour).Format(time.RFC3339)

	// A bio schema cannot be scheduled on a math course.
	code, bioSchema := call(t, srv, "POST", "/api/testsSchemas", teacherSess, map[string]any{
		"name": "Cells", "subject": "bio",
		"questions": []map[string]any{
			{"content": "q", "options": []map[string]any{{"content": "a", "correct": true}}},
		},
	})
	if code != http.StatusOK {
		t.Fatalf("create bio schema: %d %v", code, bioSchema)
	}
	code, body = call(t, srv, "POST", "/api/tests", teacherSess, map[string]any{
		"schema": bioSchema["_id"], "course": "math-g1", "end": end,
	})
	if code != http.StatusNotFound || body["reason"] != "subject_mismatch" {
		t.Fatalf("subject mismatch: %d %v", code, body)
	}

	code, test := call(t, srv, "POST", "/api/tests", teacherSess, map[string]any{
		"schema": schemaID, "course": "math-g1", "end": end,
	})
	if code != http.StatusOK {
		t.Fatalf("create test: %d %v", code, test)
	}
	testID, _ := test["_id"].(string)
	if test["status"] != "ongoing" {
		t.Fatalf("fresh test status = %v, want ongoing", test["status"])
	}
	if attempts := test["attempts"].([]any); len(attempts) != 1 {
		t.Fatalf("expected one spawned attempt, got %d", len(attempts))
	}

	// Student answers the first question correctly and the second wrong.
	answerPath := func(q string) string {
		return fmt.Sprintf("/api/tests/answer/%s/%s", testID, q)
	}
	if code, body = call(t, srv, "PUT", answerPath(questionIDs[0]), studentSess, map[string]any{
		"answer": correctOf(0),
	}); code != http.StatusOK {
		t.Fatalf("answer q1: %d %v", code, body)
	}
	if code, body = call(t, srv, "PUT", answerPath(questionIDs[1]), studentSess, map[string]any{
		"answer": []string{wrongOf(1)},
	}); code != http.StatusOK {
		t.Fatalf("answer q2: %d %v", code, body)
	}

	// While ongoing the student sees options without correct flags.
	code, view := call(t, srv, "GET", "/api/tests/single/"+testID, studentSess, nil)
	if code != http.StatusOK || view["my_access"] != "student" {
		t.Fatalf("student view: %d %v", code, view)
	}
	attempt := view["my_attempt"].(map[string]any)
	if attempt["answered"] != float64(2) {
		t.Fatalf("answered = %v, want 2", attempt["answered"])
	}
	for _, rec := range attempt["questions"].([]any) {
		for _, o := range rec.(map[string]any)["options"].([]any) {
			if correct, ok := o.(map[string]any)["correct"]; ok && correct == true {
				t.Fatalf("correct flag leaked while ongoing: %v", o)
			}
		}
	}

	// Close the window, then answering must refuse.
	if _, err := dbh.Exec(`UPDATE tests SET end_at = $1 WHERE id = $2`,
		time.Now().Add(-time.Minute).Unix(), testID); err != nil {
		t.Fatalf("close window: %v", err)
	}
	code, body = call(t, srv, "PUT", answerPath(questionIDs[0]), studentSess, map[string]any{
		"answer": correctOf(0),
	})
	if code != http.StatusBadRequest || body["reason"] != "test_not_ongoing" {
		t.Fatalf("answer after end: %d %v", code, body)
	}

	// Finished: one of two correct truncates to 50.
	code, view = call(t, srv, "GET", "/api/tests/single/"+testID, studentSess, nil)
	if code != http.StatusOK {
		t.Fatalf("finished student view: %d %v", code, view)
	}
	attempt = view["my_attempt"].(map[string]any)
	if attempt["correctAnswers"] != float64(1) || attempt["score"] != float64(50) {
		t.Fatalf("finished attempt = correct %v score %v, want 1 and 50", attempt["correctAnswers"], attempt["score"])
	}

	// The teacher sees scored attempts.
	code, view = call(t, srv, "GET", "/api/tests/single/"+testID, teacherSess, nil)
	if code != http.StatusOK || view["my_access"] != "teacher" {
		t.Fatalf("teacher view: %d %v", code, view)
	}
	scoredAttempts := view["attempts"].([]any)
	if len(scoredAttempts) != 1 {
		t.Fatalf("teacher sees %d attempts, want 1", len(scoredAttempts))
	}
	if score := scoredAttempts[0].(map[string]any)["score"]; score != float64(50) {
		t.Fatalf("teacher-side score = %v, want 50", score)
	}

	// Schema statistics reflect the finished attempt.
	code, stats := call(t, srv, "GET", "/api/testsSchemas/"+schemaID, teacherSess, nil)
	if code != http.StatusOK {
		t.Fatalf("schema stats: %d %v", code, stats)
	}
	if stats["totalAttempts"] != float64(1) || stats["averageScore"] != float64(50) {
		t.Fatalf("stats = attempts %v average %v, want 1 and 50", stats["totalAttempts"], stats["averageScore"])
	}

	// The student's test list reports the correctness count.
	code, raw := callRaw(t, srv, "GET", "/api/tests/my", studentSess, nil)
	if code != http.StatusOK {
		t.Fatalf("my tests: %d %s", code, raw)
	}
	var mine []map[string]any
	if err := json.Unmarshal(raw, &mine); err != nil {
		t.Fatalf("decode my tests: %v", err)
	}
	if len(mine) != 1 || mine[0]["status"] != "finished" || mine[0]["validAnswers"] != float64(1) {
		t.Fatalf("my tests = %v", mine)
	}
}

func TestAPI_SessionLifecycle(t *testing.T) {
	srv, dbh := newTestServer(t, "api_session_flow")

	if code, _ := call(t, srv, "POST", "/api/dev/create-admin", "", nil); code != http.StatusOK {
		t.Fatalf("create-admin failed")
	}

	// The login response carries the session id and expiry, never the user id.
	code, body := call(t, srv, "POST", "/api/session", "", map[string]string{
		"email": "admin@test.pl", "password": "admin",
	})
	if code != http.StatusOK {
		t.Fatalf("login: %d %v", code, body)
	}
	sess, _ := body["session_id"].(string)
	if sess == "" {
		t.Fatalf("no session_id in %v", body)
	}
	if _, ok := body["expiry"]; !ok {
		t.Fatalf("no expiry in %v", body)
	}
	if _, ok := body["user_id"]; ok {
		t.Fatalf("user id leaked in login response: %v", body)
	}

	// Valid session: probe says 204, /me resolves the user.
	if code, _ := call(t, srv, "GET", "/api/session/check/"+sess, "", nil); code != http.StatusNoContent {
		t.Fatalf("check valid session: %d, want 204", code)
	}
	code, me := call(t, srv, "GET", "/api/me", sess, nil)
	if code != http.StatusOK || me["email"] != "admin@test.pl" {
		t.Fatalf("me: %d %v", code, me)
	}

	// No session at all.
	if code, _ := call(t, srv, "GET", "/api/me", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("me without session: %d, want 401", code)
	}

	// Expired session: still present in the store, refused with a reason.
	if _, err := dbh.Exec(`UPDATE sessions SET expiry = $1 WHERE id = $2`,
		time.Now().Add(-time.Minute).Unix(), sess); err != nil {
		t.Fatalf("expire session: %v", err)
	}
	code, body = call(t, srv, "GET", "/api/me", sess, nil)
	if code != http.StatusUnauthorized || body["reason"] != "session_expired" {
		t.Fatalf("expired session: %d %v", code, body)
	}
	if code, _ := call(t, srv, "GET", "/api/session/check/"+sess, "", nil); code != http.StatusBadRequest {
		t.Fatalf("check expired session: %d, want 400", code)
	}

	// Fresh login, then logout removes the session for good. A second logout
	// never reaches the handler: the gate no longer resolves the session and
	// refuses with a bare 401.
	sess = login(t, srv, "admin@test.pl", "admin")
	if code, _ := call(t, srv, "DELETE", "/api/session", sess, nil); code != http.StatusOK {
		t.Fatalf("logout: %d", code)
	}
	code, body = call(t, srv, "DELETE", "/api/session", sess, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("second logout: %d %v", code, body)
	}
	if code, _ := call(t, srv, "GET", "/api/me", sess, nil); code != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d, want 401", code)
	}
}

// The handler's own not-found answer, reachable only without the gate in
// front (a store losing the session between the gate and the handler).
func TestLogoutHandler_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, "api_logout_direct")

	if code, _ := call(t, srv, "POST", "/api/dev/create-admin", "", nil); code != http.StatusOK {
		t.Fatalf("create-admin failed")
	}
	sess := login(t, srv, "admin@test.pl", "admin")

	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:api_logout_direct?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer dbh.Close()
	handler := api.LogoutHandler(session.NewSQLStore(dbh))

	// Valid session id resolved and deleted.
	req := httptest.NewRequest("DELETE", "/api/session", nil)
	req.Header.Set(session.Header, sess)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}

	// Unknown session id names what was missing.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session logout: %d, want 404", rec.Code)
	}
	var body map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if props := body["notfound"]; len(props) != 1 || props[0] != "session" {
		t.Fatalf("notfound = %v", props)
	}
}
