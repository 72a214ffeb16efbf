package httpserver

import (
	"context"
	"net/http"

	"github.com/Skotchmaster/session_gate/internal/cookies"
	"github.com/Skotchmaster/session_gate/internal/gate"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Gate        *gate.Gate
	Pages       *gate.PageAuthorizer
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics is served at /metrics when set. The gate policy must list
	// the path as public.
	Metrics http.Handler
}

// Register mounts the gate and every route. Middleware that must see the
// request before the gate, such as the request logger, is added by the
// caller first.
func Register(e *echo.Echo, d *Deps) {
	e.Use(d.Gate.Middleware())

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return httpError(http.StatusServiceUnavailable, CodeUnavailable, "not ready")
			}
		}
		return c.NoContent(http.StatusOK)
	})

	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	auth := e.Group("/auth")
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/logout", d.AuthHandler.LogOut)

	refresh := e.Group(cookies.RefreshPath)
	refresh.POST("", d.AuthHandler.Refresh)
	refresh.GET("", d.AuthHandler.RefreshFlow)
	refresh.POST("/logout", d.AuthHandler.LogOut)

	e.GET("/login", LoginPage)

	e.GET("/api/data", gate.WithIdentity(Data))
	e.GET("/api/me", gate.WithIdentity(Me))

	e.GET("/dashboard", d.Pages.Require(Dashboard))
	e.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusSeeOther, defaultLanding) })
}
