package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlexDid/simple-debts-api/internal/apperrors"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFromError maps service errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError logs nothing and maps a service error onto the
// wire; callers log with their own context fields first.
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondError(w, message, status)
}
