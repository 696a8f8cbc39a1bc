package httpapi

import (
	"errors"
	"net/http"

	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/observability/tracing"
	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/co2market/auth-service/pkg/persistence"
	"github.com/gin-gonic/gin"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

var errRateLimited = errors.New("rate limit exceeded, please try again later")

func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, account.ErrUsernameTaken), errors.Is(err, account.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, outbox.ErrEventNotFound), errors.Is(err, persistence.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, outbox.ErrAlreadyPublished), errors.Is(err, outbox.ErrLeaseLost):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abort records err for the error logger and writes its problem response.
func abort(c *gin.Context, status int, err error) {
	if status == 0 {
		status = statusFor(err)
	}
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	_ = c.Error(err)
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(status, Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request.URL.Path,
		TraceID:  tracing.TraceID(c.Request.Context()),
	})
}
