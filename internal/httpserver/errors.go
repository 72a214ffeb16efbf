package httpserver

import (
	"errors"
	"net/http"

	"github.com/Skotchmaster/session_gate/internal/gate"
	"github.com/Skotchmaster/session_gate/internal/service"
	"github.com/labstack/echo/v4"
)

const (
	CodeValidation         = "validation_error"
	CodeInvalidCredentials = "invalid_credentials"
	CodeRevokedToken       = "revoked_token"
	CodeUnavailable        = "unavailable"
	CodeInternal           = "internal_error"
)

func httpError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, echo.Map{"error": code, "message": message})
}

// authError maps service errors to responses. ErrRevokedToken is checked
// before ErrUnavailable because a failed revocation lookup matches both and
// must deny as revoked.
func authError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, service.ErrValidation):
		return httpError(http.StatusBadRequest, CodeValidation, "username and password are required")
	case errors.Is(err, service.ErrInvalidCredentials):
		return httpError(http.StatusUnauthorized, CodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, service.ErrUnauthenticated):
		return httpError(http.StatusUnauthorized, gate.CodeUnauthenticated, "refresh token not found")
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return httpError(http.StatusUnauthorized, gate.CodeInvalidOrExpiredToken, "invalid or expired refresh token")
	case errors.Is(err, service.ErrRevokedToken):
		return httpError(http.StatusUnauthorized, CodeRevokedToken, "refresh token has been revoked")
	case errors.Is(err, service.ErrUnavailable):
		return httpError(http.StatusServiceUnavailable, CodeUnavailable, "session store unavailable")
	default:
		return httpError(http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
