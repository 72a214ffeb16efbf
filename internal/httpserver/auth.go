package httpserver

import (
	"net/http"
	"strings"

	"github.com/Skotchmaster/session_gate/internal/cookies"
	"github.com/Skotchmaster/session_gate/internal/gate"
	"github.com/Skotchmaster/session_gate/internal/logging"
	"github.com/Skotchmaster/session_gate/internal/service"
	"github.com/Skotchmaster/session_gate/internal/tokens"
	"github.com/labstack/echo/v4"
)

const defaultLanding = "/dashboard"

type AuthHTTP struct {
	Svc       *service.AuthService
	Cookies   cookies.Policy
	LoginPath string
}

func NewAuthHTTP(svc *service.AuthService, policy cookies.Policy) *AuthHTTP {
	return &AuthHTTP{Svc: svc, Cookies: policy, LoginPath: gate.DefaultLoginPath}
}

type loginRequest struct {
	Username   string `json:"username"   form:"username"`
	Password   string `json:"password"   form:"password"`
	RedirectTo string `json:"redirectTo" form:"redirectTo"`
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return httpError(http.StatusBadRequest, CodeValidation, "invalid body")
	}
	fromForm := isForm(c.Request())

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		he := authError(err)
		l.Warn("login_failed", "status", he.Code, "error", err)
		if fromForm && he.Code < http.StatusInternalServerError {
			code, _ := he.Message.(echo.Map)["error"].(string)
			return c.Redirect(http.StatusSeeOther, gate.WithRedirect(h.LoginPath, landing(req.RedirectTo))+"&error="+code)
		}
		return he
	}

	c.SetCookie(h.Cookies.Access(res.AccessToken, h.Svc.Codec.TTL(tokens.Access)))
	c.SetCookie(h.Cookies.Refresh(res.RefreshToken, h.Svc.Codec.TTL(tokens.Refresh)))
	l.Info("login_successful", "user_id", res.User.ID)

	if fromForm {
		return c.Redirect(http.StatusSeeOther, landing(req.RedirectTo))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Login successful",
		"user":    res.User,
	})
}

// LogOut always succeeds and clears both cookies. It is mounted under the
// refresh cookie path as well, since only there does the browser send the
// refresh token that must be revoked.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var token string
	if ck, err := c.Cookie(cookies.RefreshName); err == nil {
		token = ck.Value
	}

	if err := h.Svc.LogOut(ctx, token); err != nil {
		l.Error("logout_failed", "status", 200, "reason", "cannot revoke refresh token", "error", err)
	}

	c.SetCookie(h.Cookies.ClearAccess())
	c.SetCookie(h.Cookies.ClearRefresh())

	l.Info("successful_logout", "revoked", token != "")
	if isForm(c.Request()) {
		return c.Redirect(http.StatusSeeOther, h.LoginPath)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Logout successful",
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	res, err := h.Svc.Refresh(ctx, refreshCookie(c))
	if err != nil {
		he := authError(err)
		l.Warn("refresh_failed", "status", he.Code, "error", err)
		return he
	}

	h.setRefreshed(c, res)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Token refreshed successfully.",
	})
}

// RefreshFlow is the browser side of a silent refresh: it refreshes and
// sends the user back to redirectTo, or to the login page when the refresh
// token is unusable as well.
func (h *AuthHTTP) RefreshFlow(c echo.Context) error {
	ctx := c.Request().Context()
	target := landing(c.QueryParam(gate.RedirectParam))
	l := logging.FromContext(ctx).With("handler", "auth_refresh_flow", "redirect_to", target)

	res, err := h.Svc.Refresh(ctx, refreshCookie(c))
	if err != nil {
		l.Info("silent_refresh_failed", "error", err)
		c.SetCookie(h.Cookies.ClearAccess())
		c.SetCookie(h.Cookies.ClearRefresh())
		return c.Redirect(http.StatusSeeOther, gate.WithRedirect(h.LoginPath, target))
	}

	h.setRefreshed(c, res)
	l.Info("silent_refresh_successful", "user_id", res.Claims.UserID)
	return c.Redirect(http.StatusSeeOther, target)
}

func (h *AuthHTTP) setRefreshed(c echo.Context, res *service.RefreshResult) {
	c.SetCookie(h.Cookies.Access(res.AccessToken, h.Svc.Codec.TTL(tokens.Access)))
	if res.RefreshToken != "" {
		c.SetCookie(h.Cookies.Refresh(res.RefreshToken, h.Svc.Codec.TTL(tokens.Refresh)))
	}
}

func refreshCookie(c echo.Context) string {
	ck, err := c.Cookie(cookies.RefreshName)
	if err != nil {
		return ""
	}
	return ck.Value
}

func landing(raw string) string {
	if raw == "" {
		return defaultLanding
	}
	return gate.SafeRedirectTarget(raw)
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationForm)
}
