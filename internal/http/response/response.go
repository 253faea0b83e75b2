package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/luxcrm/relay/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func Error(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// FromError maps sentinel errors onto HTTP statuses. Unknown errors become
// an opaque 500 so internals never leak to webhook callers.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		Error(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, apperrors.ErrNotFound):
		Error(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperrors.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, apperrors.ErrConflict):
		Error(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, apperrors.ErrPolicyViolation):
		Error(c, http.StatusUnprocessableEntity, "policy_violation", err)
	default:
		Error(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
