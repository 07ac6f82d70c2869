package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type subjectView struct {
	ID     string `json:"_id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Subject codes are case-insensitive and stored normalized.
func normCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// GET /api/subjects
func ListSubjectsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(),
			`SELECT id, code, name, active FROM subjects ORDER BY name, code`)
		if err != nil {
			internalError(w, err)
			return
		}
		defer rows.Close()

		out := []subjectView{}
		for rows.Next() {
			var s subjectView
			if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Active); err != nil {
				internalError(w, err)
				return
			}
			out = append(out, s)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /api/subjects/{code}
func GetSubjectHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := normCode(chi.URLParam(r, "code"))

		var s subjectView
		err := db.QueryRowContext(r.Context(),
			`SELECT id, code, name, active FROM subjects WHERE code = $1`, code).
			Scan(&s.ID, &s.Code, &s.Name, &s.Active)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"subject"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// POST /api/subjects: admin only.
func CreateSubjectHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
			Name string `json:"name"`
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
		err := db.QueryRowContext(r.Context(), `SELECT 1 FROM subjects WHERE code = $1`, code).Scan(&exists)
		if err == nil {
			duplicate(w, []string{"code"})
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			internalError(w, err)
			return
		}

		s := subjectView{ID: uuid.NewString(), Code: code, Name: req.Name, Active: true}
		if _, err := db.ExecContext(r.Context(),
			`INSERT INTO subjects (id, code, name, active) VALUES ($1, $2, $3, $4)`,
			s.ID, s.Code, s.Name, true); err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// PUT /api/subjects/{code}: admin renames or recodes a subject.
func EditSubjectHandler(db *sql.DB) http.HandlerFunc {
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
			err := db.QueryRowContext(r.Context(), `SELECT 1 FROM subjects WHERE code = $1`, newCode).Scan(&exists)
			if err == nil {
				duplicate(w, []string{"code"})
				return
			}
			if !errors.Is(err, sql.ErrNoRows) {
				internalError(w, err)
				return
			}
		}

		var s subjectView
		err := db.QueryRowContext(r.Context(),
			`SELECT id, code, name, active FROM subjects WHERE code = $1`, code).
			Scan(&s.ID, &s.Code, &s.Name, &s.Active)
		if errors.Is(err, sql.ErrNoRows) {
			notFound(w, []string{"subject"})
			return
		}
		if err != nil {
			internalError(w, err)
			return
		}

		if req.Name != "" {
			s.Name = req.Name
		}
		if newCode != "" {
			s.Code = newCode
		}
		if _, err := db.ExecContext(r.Context(),
			`UPDATE subjects SET code = $1, name = $2 WHERE id = $3`, s.Code, s.Name, s.ID); err != nil {
			internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}
