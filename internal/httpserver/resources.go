package httpserver

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/Skotchmaster/session_gate/internal/gate"
	"github.com/Skotchmaster/session_gate/internal/logging"
	"github.com/labstack/echo/v4"
)

type dataItem struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Data is the demo API resource.
func Data(c echo.Context, id gate.Identity) error {
	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("This is protected data for user %s with role %s.", id.UserID, id.Role),
		"data": []dataItem{
			{ID: 1, Content: "Secret info 1"},
			{ID: 2, Content: "Secret info 2"},
		},
	})
}

func Me(c echo.Context, id gate.Identity) error {
	return c.JSON(http.StatusOK, echo.Map{"user": id})
}

var pages = template.Must(template.New("pages").Parse(`
{{define "login"}}<!doctype html>
<title>Sign in</title>
{{if .Error}}<p role="alert">Invalid username or password.</p>{{end}}
<form method="post" action="/auth/login">
<input type="hidden" name="redirectTo" value="{{.RedirectTo}}">
<label>Username <input name="username" autocomplete="username"></label>
<label>Password <input name="password" type="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
{{end}}
{{define "dashboard"}}<!doctype html>
<title>Dashboard</title>
<header><p>Welcome, {{.Username}} (user {{.UserID}})</p><p>ROLE: {{.Role}}</p></header>
<form method="post" action="/auth/refresh/logout"><button type="submit">Logout</button></form>
{{end}}`))

func render(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		logging.FromContext(c.Request().Context()).Error("render_failed", "template", name, "error", err)
		return httpError(http.StatusInternalServerError, CodeInternal, "internal error")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func LoginPage(c echo.Context) error {
	return render(c, "login", struct {
		RedirectTo string
		Error      bool
	}{
		RedirectTo: landing(c.QueryParam(gate.RedirectParam)),
		Error:      c.QueryParam("error") != "",
	})
}

func Dashboard(c echo.Context, id gate.Identity) error {
	return render(c, "dashboard", struct {
		UserID   string
		Username string
		Role     string
	}{id.UserID, id.Username, strings.ToUpper(id.Role)})
}
