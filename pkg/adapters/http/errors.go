package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/runner"
)

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	var verr *domain.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrGraphNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrConnectorNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrInputTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrUnknownNodeType),
		errors.Is(err, domain.ErrDuplicateStart),
		errors.Is(err, domain.ErrDuplicateInit),
		errors.Is(err, runner.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAwaitingInput),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoOutput):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoStartNode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"error": "..."} and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(reason string) error {
	return &domain.ValidationError{Field: "body", Reason: reason}
}
