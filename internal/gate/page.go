package gate

import (
	"net/http"

	"github.com/Skotchmaster/session_gate/internal/cookies"
	"github.com/Skotchmaster/session_gate/internal/logging"
	"github.com/Skotchmaster/session_gate/internal/tokens"
	"github.com/labstack/echo/v4"
)

// PageAuthorizer performs the full check for page routes that the gate only
// screened for cookie presence.
type PageAuthorizer struct {
	Codec       *tokens.Codec
	RefreshPath string
}

func NewPageAuthorizer(codec *tokens.Codec) *PageAuthorizer {
	return &PageAuthorizer{Codec: codec, RefreshPath: DefaultRefreshPath}
}

// Require runs h with the verified identity. When the access token is
// missing or no longer valid the browser is sent to the silent-refresh flow,
// which returns it to the same page or, if the refresh token is unusable too,
// on to the login page.
func (p *PageAuthorizer) Require(h IdentityHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()

		target, ok := PathFromContext(ctx)
		if !ok {
			target = req.URL.RequestURI()
		}

		if cookie, err := c.Cookie(cookies.AccessName); err == nil && cookie.Value != "" {
			claims, err := p.Codec.Check(tokens.Access, cookie.Value)
			if err == nil {
				id := identityOf(claims)
				forward(IntoContext(ctx, id), c)
				return h(c, id)
			}
			logging.FromContext(ctx).Debug("page_token_rejected", "path", target, "expired", tokens.Expired(err), "error", err)
		}

		return c.Redirect(http.StatusSeeOther, WithRedirect(p.RefreshPath, target))
	}
}
