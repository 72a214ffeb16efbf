package gate

import (
	"net/url"
	"strings"
)

const (
	DefaultLoginPath   = "/login"
	DefaultRefreshPath = "/auth/refresh"
	RedirectParam      = "redirectTo"
)

// SafeRedirectTarget returns raw when it is a path on this site and "/"
// otherwise, so redirectTo can never send the browser to another origin.
func SafeRedirectTarget(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	if strings.ContainsAny(raw, "\r\n\t\x00") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return raw
}

// WithRedirect appends the sanitized target to base as ?redirectTo=.
func WithRedirect(base, target string) string {
	return base + "?" + url.Values{RedirectParam: {SafeRedirectTarget(target)}}.Encode()
}
