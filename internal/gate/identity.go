package gate

import (
	"context"
	"net/http"

	"github.com/Skotchmaster/session_gate/internal/tokens"
	"github.com/labstack/echo/v4"
)

// Identity is the verified session forwarded to handlers.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func identityOf(c *tokens.Claims) Identity {
	return Identity{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

type ctxKey int

const (
	identityKey ctxKey = iota
	pathKey
)

func IntoContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithPath records the path the client originally asked for.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey, path)
}

func PathFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(pathKey).(string)
	return p, ok
}

type IdentityHandler func(c echo.Context, id Identity) error

// WithIdentity adapts h to echo. The route must sit behind the API class of
// the gate or a PageAuthorizer; without an identity in context it answers 401.
func WithIdentity(h IdentityHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := IdentityFromContext(c.Request().Context())
		if !ok {
			return unauthorized(CodeUnauthenticated, "no session")
		}
		return h(c, id)
	}
}

const (
	CodeUnauthenticated       = "unauthenticated"
	CodeInvalidOrExpiredToken = "invalid_or_expired_token"
)

func unauthorized(code, message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"error": code, "message": message})
}

func forward(ctx context.Context, c echo.Context) {
	c.SetRequest(c.Request().WithContext(ctx))
}
