// Package api contains the HTTP layer: routing, request binding, and response formatting.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ─── Error envelope ───────────────────────────────────────────────────────────

// envelope wraps every error response. Successful responses are written
// unwrapped so clients read decisions at the top level.
type envelope struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in the envelope.
const (
	codeInvalidJSON      = "INVALID_JSON"
	codeValidation       = "VALIDATION_ERROR"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// ─── Response helpers ─────────────────────────────────────────────────────────

// writeJSON serialises v into the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Headers are already sent; all we can do is log.
		slog.Warn("encode response", "error", err)
	}
}

// ok writes a 200 response.
func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: &apiError{Code: code, Message: message}})
}

// badRequest writes a 400 error response.
func badRequest(w http.ResponseWriter, code, message string) {
	writeError(w, http.StatusBadRequest, code, message)
}

// unprocessable writes a 422 error response for well-formed JSON whose
// content fails validation.
func unprocessable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, codeValidation, message)
}

// tooLarge writes a 413 error response.
func tooLarge(w http.ResponseWriter, message string) {
	writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, message)
}

// notFound writes a 404 error response.
func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, codeNotFound, message)
}

// methodNotAllowed writes a 405 error response.
func methodNotAllowed(w http.ResponseWriter, message string) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, message)
}
