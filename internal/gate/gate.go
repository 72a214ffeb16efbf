// Package gate enforces sessions on inbound requests.
//
// Every request is classified by path. Public requests pass. API requests
// need a fully valid access token and fail fast with a JSON 401. Page
// requests only need the access cookie to be present; full verification and
// the silent-refresh redirect happen in PageAuthorizer, because an expired
// access token may still be recoverable with the refresh cookie.
package gate

import (
	"net/http"
	"path"
	"strings"

	"github.com/Skotchmaster/session_gate/internal/cookies"
	"github.com/Skotchmaster/session_gate/internal/logging"
	"github.com/Skotchmaster/session_gate/internal/tokens"
	"github.com/labstack/echo/v4"
)

type Class int

const (
	Public Class = iota
	API
	Page
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case API:
		return "api"
	default:
		return "page"
	}
}

type Policy struct {
	PublicPaths    []string
	PublicPrefixes []string
	APIPrefixes    []string
	LoginPath      string
}

func DefaultPolicy() Policy {
	return Policy{
		PublicPaths:    []string{DefaultLoginPath, "/favicon.ico"},
		PublicPrefixes: []string{"/auth/", "/health/"},
		APIPrefixes:    []string{"/api/"},
		LoginPath:      DefaultLoginPath,
	}
}

// Classify works on the cleaned path so dot segments cannot move a request
// into a weaker class.
func (p Policy) Classify(raw string) Class {
	clean := path.Clean("/" + raw)

	for _, pp := range p.PublicPaths {
		if clean == pp {
			return Public
		}
	}
	if matchPrefix(clean, p.PublicPrefixes) {
		return Public
	}
	if matchPrefix(clean, p.APIPrefixes) {
		return API
	}
	return Page
}

func matchPrefix(clean string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(clean, pre) || clean == strings.TrimSuffix(pre, "/") {
			return true
		}
	}
	return false
}

type Gate struct {
	Codec  *tokens.Codec
	Policy Policy
}

func New(codec *tokens.Codec, policy Policy) *Gate {
	if policy.LoginPath == "" {
		policy.LoginPath = DefaultLoginPath
	}
	return &Gate{Codec: codec, Policy: policy}
}

func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch g.Policy.Classify(c.Request().URL.Path) {
			case Public:
				return next(c)
			case API:
				return g.api(c, next)
			default:
				return g.page(c, next)
			}
		}
	}
}

func (g *Gate) api(c echo.Context, next echo.HandlerFunc) error {
	req := c.Request()
	ctx := req.Context()
	l := logging.FromContext(ctx).With("mw", "gate", "class", "api")

	cookie, err := c.Cookie(cookies.AccessName)
	if err != nil || cookie.Value == "" {
		l.Debug("request_rejected", "status", 401, "reason", "no access token")
		return unauthorized(CodeUnauthenticated, "missing access token")
	}

	claims, err := g.Codec.Check(tokens.Access, cookie.Value)
	if err != nil {
		l.Debug("request_rejected", "status", 401, "reason", "invalid access token", "error", err)
		return unauthorized(CodeInvalidOrExpiredToken, "invalid or expired token")
	}

	ctx = WithPath(IntoContext(ctx, identityOf(claims)), req.URL.RequestURI())
	forward(ctx, c)
	return next(c)
}

func (g *Gate) page(c echo.Context, next echo.HandlerFunc) error {
	req := c.Request()
	target := req.URL.RequestURI()

	cookie, err := c.Cookie(cookies.AccessName)
	if err != nil || cookie.Value == "" {
		logging.FromContext(req.Context()).Debug("redirect_to_login", "mw", "gate", "class", "page", "path", target)
		return c.Redirect(http.StatusSeeOther, WithRedirect(g.Policy.LoginPath, target))
	}

	forward(WithPath(req.Context(), target), c)
	return next(c)
}
