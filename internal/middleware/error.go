package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"serenity-catalog/internal/domain"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every error reply.
// Message is only set by endpoints that pair a summary with the failure.
type ErrorResponse struct {
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RespondWithError sends {"error": message}
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithJSON(w, statusCode, ErrorResponse{Error: message})
}

// RespondWithErrorDetails sends an error response with additional details
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	RespondWithJSON(w, statusCode, ErrorResponse{Error: message, Details: details})
}

// RespondWithMessageError sends {"message": message, "error": errMessage}
func RespondWithMessageError(w http.ResponseWriter, statusCode int, message, errMessage string) {
	RespondWithJSON(w, statusCode, ErrorResponse{Message: message, Error: errMessage})
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	details := make(map[string]interface{})
	details["validation_errors"] = errors

	RespondWithErrorDetails(w, http.StatusBadRequest, "validation failed", details)
}

// StatusForError maps error kinds to HTTP status codes.
// Unrecognized errors are 500.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithDomainError writes err with the status its kind maps to.
// Client errors carry err's text; server errors are logged and replaced by fallback.
func RespondWithDomainError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	status := StatusForError(err)

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		fields := make(map[string]interface{}, len(validationErr.Fields))
		for k, v := range validationErr.Fields {
			fields[k] = v
		}
		RespondWithErrorDetails(w, http.StatusBadRequest, err.Error(), map[string]interface{}{"fields": fields})
		return
	}

	if status >= http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err))
		RespondWithError(w, status, fallback)
		return
	}

	RespondWithError(w, status, err.Error())
}

// MethodNotAllowed answers verbs a route does not support
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s Not Allowed", r.Method))
}

// NotFound answers unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, http.StatusNotFound, "route not found")
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
						zap.Stack("stack"),
					)

					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
