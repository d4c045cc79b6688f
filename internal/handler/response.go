package handler

// RESPONSE HELPERS:
// Every JSON endpoint answers through writeJSON and every failure through
// writeError, so the API has one error shape:
//
//	{"error": "validation_error", "message": "Description must be at least 100 characters.", "field": "description"}
//
// Pages use statusFor/messageFor to pick the same status code and the same
// user-facing message when they re-render a form.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/campus-link/internal/apperror"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // safe to show to the user
	Field   string `json:"field,omitempty"` // offending input field, for validation errors
}

// genericUnavailable is shown for store failures. The cause is logged, never
// sent.
const genericUnavailable = "Something went wrong. Please try again."

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps err onto a status code and the standard error body.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	resp := ErrorResponse{Error: kind, Message: messageFor(err)}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && status == http.StatusBadRequest {
		resp.Field = appErr.Field
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, resp)
}

// statusFor is the single place where error sentinels become HTTP status
// codes. errors.Is walks the whole chain, so wrapped errors map the same way.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// messageFor returns the user-facing text for err. AppError messages are
// written for users; anything else gets a generic message so internals
// never leak.
func messageFor(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if errors.Is(err, apperror.ErrUnavailable) {
		return genericUnavailable
	}
	return "An internal error occurred"
}

// decodeJSON reads a JSON body into v, refusing unknown fields and bodies
// over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}
