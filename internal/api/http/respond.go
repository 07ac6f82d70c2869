// Package http holds the request handlers. Routes stay in cmd/server.
package http

import (
	"encoding/json"
	"log"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requiredFields: some required fields were not provided or their type is
// not valid.
func requiredFields(w http.ResponseWriter, fields []string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"required": fields,
		"message":  "Some of required fields were not provided or their type is not valid",
	})
}

// structureError describes one value-shape violation.
type structureError struct {
	Field     string   `json:"field"`
	Type      string   `json:"type,omitempty"`
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Enum      []string `json:"enum,omitempty"`
}

func invalidStructure(w http.ResponseWriter, fields []structureError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"structure": fields,
		"message":   "Structure of some of the fields is not valid",
	})
}

func notFound(w http.ResponseWriter, props []string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"notfound": props})
}

// notFoundReason is notFound with an extra machine-readable reason, e.g. the
// schema/course subject mismatch on test creation.
func notFoundReason(w http.ResponseWriter, props []string, reason, message string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"notfound": props,
		"reason":   reason,
		"message":  message,
	})
}

func duplicate(w http.ResponseWriter, fields []string) {
	writeJSON(w, http.StatusConflict, map[string]any{
		"duplicate": fields,
		"message":   "Unique fields duplication",
	})
}

// internalError logs the cause and answers with a bare 500; internals never
// reach the caller.
func internalError(w http.ResponseWriter, err error) {
	log.Printf("internal error: %v", err)
	w.WriteHeader(http.StatusInternalServerError)
}
