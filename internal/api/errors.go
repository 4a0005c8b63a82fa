package api

import (
	"encoding/json"
	"net/http"
)

// ErrDetail is the error body returned on every non-2xx response. The
// same shape travels as the detail field of WebSocket close reasons.
type ErrDetail struct {
	Type string `json:"type,omitempty"`
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Error detail types.
const (
	ErrTypeBadRequest   = "bad_request"
	ErrTypeNotFound     = "not_found"
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeValidation   = "invalid_payload"
	ErrTypeInternal     = "internal_error"
	ErrTypeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, detail ErrDetail) {
	writeJSON(w, status, detail)
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, ErrDetail{Type: ErrTypeBadRequest, Msg: msg})
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, ErrDetail{Type: ErrTypeNotFound, Msg: msg})
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, ErrDetail{Type: ErrTypeUnauthorized, Msg: msg})
}

// writeUnprocessable writes a 422 error response for payloads that parse
// as JSON but fail validation.
func writeUnprocessable(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnprocessableEntity, ErrDetail{Type: ErrTypeValidation, Msg: msg})
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, ErrDetail{Type: ErrTypeInternal, Msg: msg})
}
