package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON, and every failure goes through
// writeError, so the whole API has one error shape:
//
//	{"error": "cupcake title is required", "name": "ValidationError", "message": "cupcake title is required"}
//
// `error` and `message` carry the same human-readable text; `name` is the
// machine-readable kind. Internal details (SQL, file paths, driver errors)
// never reach the body: anything that is not an *apperror.AppError is
// reported as a generic 500.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/cupcakes/internal/apperror"
)

// ErrorResponse is the error envelope returned by every route.
type ErrorResponse struct {
	Error   string `json:"error"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Error names, as they appear in ErrorResponse.Name.
const (
	NameValidation   = "ValidationError"
	NameUnauthorized = "UnauthorizedError"
	NameNotFound     = "NotFoundError"
	NameMethod       = "MethodNotAllowedError"
	NameUnavailable  = "ServiceUnavailableError"
	NameInternal     = "InternalServerError"
)

const internalMessage = "An internal error occurred"

// writeJSON sends data as JSON with the given status.
// Headers must be set before WriteHeader; anything after is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeErrorStatus writes the envelope with an explicit status and name.
func writeErrorStatus(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Name:    name,
		Message: message,
	})
}

// writeError maps a domain error to a status and writes the envelope.
//
// errors.As finds the *AppError anywhere in the chain, so services can wrap
// freely with fmt.Errorf("...: %w", err) and the mapping still works.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeErrorStatus(w, http.StatusInternalServerError, NameInternal, internalMessage)
		return
	}

	status, name := http.StatusInternalServerError, NameInternal
	message := appErr.Message

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, name = http.StatusBadRequest, NameValidation
	case errors.Is(err, apperror.ErrUnauthorized):
		status, name = http.StatusUnauthorized, NameUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		status, name = http.StatusNotFound, NameNotFound
	case errors.Is(err, apperror.ErrUnavailable):
		status, name = http.StatusServiceUnavailable, NameUnavailable
	default:
		message = internalMessage
	}

	writeErrorStatus(w, status, name, message)
}

// logAndWriteError logs the failure at a level matching its status, then
// writes it. Expected client errors are not worth an Error line.
func logAndWriteError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, msg string, err error) {
	var appErr *apperror.AppError
	level := slog.LevelError
	if errors.As(err, &appErr) && !errors.Is(err, apperror.ErrUnavailable) {
		level = slog.LevelInfo
	}
	logger.Log(r.Context(), level, msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, err)
}

// DenyBearer is the response RequireBearer sends when a request to a
// bearer-gated route carries no usable token.
func DenyBearer(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, http.StatusUnauthorized, NameUnauthorized, "No valid token, access denied")
}

// NotFound answers requests for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, http.StatusNotFound, NameNotFound, "route "+r.Method+" "+r.URL.Path+" not found")
}

// MethodNotAllowed answers requests whose path exists under another method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorStatus(w, http.StatusMethodNotAllowed, NameMethod, "method "+r.Method+" not allowed on "+r.URL.Path)
}
