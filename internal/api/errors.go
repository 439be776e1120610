package api

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/auth"
	"github.com/dharsanguruparan/straymandu/internal/workflow"
)

// httpError carries a status the handler chose itself.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func badRequest(format string, args ...interface{}) error {
	return &httpError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

var (
	errUnauthenticated  = &httpError{status: http.StatusUnauthorized, message: "authentication required"}
	errOrganizationOnly = &httpError{status: http.StatusForbidden, message: "only rescue organizations can do this"}
	errVolunteerOnly    = &httpError{status: http.StatusForbidden, message: "only volunteers can file reports"}
	errRateLimited      = &httpError{status: http.StatusTooManyRequests, message: "too many reports, slow down"}
	errMediaDisabled    = &httpError{status: http.StatusServiceUnavailable, message: "media storage not configured"}
	errFeedDisabled     = &httpError{status: http.StatusServiceUnavailable, message: "live feed not configured"}
)

// statusFor maps workflow and store errors onto HTTP statuses. Anything
// unrecognized is a store failure.
func statusFor(err error) (int, string) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, he.message
	}
	var ve *workflow.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}
	switch {
	case errors.Is(err, workflow.ErrMissingIdentity), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, workflow.ErrNotRescuer), errors.Is(err, workflow.ErrForeignTeam):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, workflow.ErrAlreadyClaimed):
		return http.StatusConflict, "report already claimed"
	case errors.Is(err, workflow.ErrNotClaimed), errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "failed to update"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	respondError(w, status, message)
}
