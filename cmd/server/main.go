package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"

	api "github.com/altrazmedia/sphinx-app-server/internal/api/http"
	"github.com/altrazmedia/sphinx-app-server/internal/config"
	"github.com/altrazmedia/sphinx-app-server/internal/db"
	"github.com/altrazmedia/sphinx-app-server/internal/exam"
	"github.com/altrazmedia/sphinx-app-server/internal/rbac"
	"github.com/altrazmedia/sphinx-app-server/internal/session"
)

func main() {
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	var sessions session.Store
	switch cfg.SessionBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping failed: %v", err)
		}
		sessions = session.NewRedisStore(client)
	default:
		sessions = session.NewSQLStore(dbh)
	}
	users := session.NewSQLUsers(dbh)

	store := exam.NewSQLStore(dbh)

	if cfg.SessionSweep > 0 {
		go sweepSessions(sessions, cfg.SessionSweep)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{session.Header, "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := session.Middleware(sessions, users)

	r.Route("/api", func(r chi.Router) {
		// Public: login and the session validity probe.
		r.Post("/session", api.LoginHandler(dbh, sessions, cfg.SessionTTL))
		r.Get("/session/check/{sessionID}", api.CheckSessionHandler(sessions))

		if cfg.EnableDevRoutes {
			r.Post("/dev/create-admin", api.CreateAdminHandler(dbh))
		}

		// Everything below passes the auth gate first.
		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Delete("/session", api.LogoutHandler(sessions))
			r.Get("/me", api.MeHandler())

			r.Get("/users", api.ListUsersHandler(dbh))
			r.Get("/users/{id}", api.GetUserHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/users", api.CreateUserHandler(dbh))

			r.Get("/subjects", api.ListSubjectsHandler(dbh))
			r.Get("/subjects/{code}", api.GetSubjectHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/subjects", api.CreateSubjectHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Put("/subjects/{code}", api.EditSubjectHandler(dbh))

			r.With(rbac.Require(rbac.RoleAdmin, rbac.RoleTeacher)).
				Get("/groups", api.ListGroupsHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin, rbac.RoleTeacher)).
				Get("/groups/{code}", api.GetGroupHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/groups", api.CreateGroupHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).Put("/groups/{code}", api.EditGroupHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).
				Put("/groups/add-students/{code}", api.AddStudentsToGroupHandler(dbh))
			r.With(rbac.Require(rbac.RoleAdmin)).
				Put("/groups/remove-students/{code}", api.RemoveStudentsFromGroupHandler(dbh))

			r.With(rbac.Require(rbac.RoleTeacher, rbac.RoleAdmin)).
				Get("/courses", api.ListCoursesHandler(dbh))
			r.Get("/courses/single/{code}", api.GetCourseHandler(dbh, store))
			r.With(rbac.Require(rbac.RoleAdmin)).Post("/courses", api.CreateCourseHandler(dbh))
			r.Get("/courses/my", api.MyCoursesHandler(dbh))
			r.Get("/courses/my-lead", api.MyLeadCoursesHandler(dbh))

			r.With(rbac.Require(rbac.RoleTeacher)).
				Get("/testsSchemas", api.ListSchemasHandler(store))
			r.With(rbac.Require(rbac.RoleTeacher)).
				Get("/testsSchemas/{id}", api.GetSchemaHandler(store))
			r.With(rbac.Require(rbac.RoleTeacher)).
				Post("/testsSchemas", api.CreateSchemaHandler(dbh, store))

			r.With(rbac.Require(rbac.RoleTeacher)).Post("/tests", api.CreateTestHandler(dbh, store))
			r.Get("/tests/single/{id}", api.GetTestHandler(dbh, store))
			r.Get("/tests/my", api.MyTestsHandler(dbh, store))
			r.Get("/tests/my-lead", api.MyLeadTestsHandler(dbh, store))
			r.With(rbac.Require(rbac.RoleStudent)).
				Put("/tests/answer/{testID}/{questionID}", api.AnswerQuestionHandler(store))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s, sessions=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.SessionBackend)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// sweepSessions lazily purges expired sessions. The auth gate never deletes
// them, so this only reclaims storage; behavior stays the same without it.
func sweepSessions(store session.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for range t.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := store.DeleteExpired(ctx, time.Now())
		cancel()
		if err != nil {
			log.Printf("session sweep: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("session sweep: removed %d expired sessions", n)
		}
	}
}
