package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/easeaico/project-nudge/internal/agent"
	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/pipeline"
)

// Error codes returned in the error body.
const (
	codeBadRequest     = "BAD_REQUEST"
	codeValidation     = "VALIDATION_FAILED"
	codeForbidden      = "FORBIDDEN"
	codeNotFound       = "NOT_FOUND"
	codeRateLimited    = "RATE_LIMITED"
	codeUnavailable    = "SERVICE_UNAVAILABLE"
	codeNotImplemented = "NOT_IMPLEMENTED"
	codeTimeout        = "GATEWAY_TIMEOUT"
	codeInternal       = "INTERNAL_SERVER_ERROR"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: getRequestID(r.Context()),
	}})
}

// handleError maps service errors onto statuses. Unknown errors are logged and hidden.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"request_id", getRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, r, status, code, "internal server error", nil)
		return
	}
	writeError(w, r, status, code, err.Error(), nil)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput), errors.Is(err, pipeline.ErrInvalidTraitValue):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, pipeline.ErrTraitNotWritable):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, pipeline.ErrTransient):
		return http.StatusServiceUnavailable, codeUnavailable
	case errors.Is(err, agent.ErrNoGenerator):
		return http.StatusNotImplemented, codeNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// decodeAndValidate reads a JSON body into v and runs its validate tags. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid request body", nil)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			writeError(w, r, http.StatusBadRequest, codeValidation, err.Error(), nil)
			return false
		}
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		writeError(w, r, http.StatusBadRequest, codeValidation, "request validation failed", details)
		return false
	}
	return true
}
