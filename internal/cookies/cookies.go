// Package cookies builds the session cookies. The access cookie is sent on
// every path; the refresh cookie only on the refresh endpoints.
package cookies

import (
	"net/http"
	"time"
)

const (
	AccessName  = "access_token"
	RefreshName = "refresh_token"

	AccessPath  = "/"
	RefreshPath = "/auth/refresh"
)

type Policy struct {
	// Secure is false only in development, where the server runs over plain http.
	Secure bool
}

func (p Policy) Access(value string, ttl time.Duration) *http.Cookie {
	return p.create(AccessName, value, AccessPath, ttl)
}

func (p Policy) Refresh(value string, ttl time.Duration) *http.Cookie {
	return p.create(RefreshName, value, RefreshPath, ttl)
}

func (p Policy) ClearAccess() *http.Cookie {
	return p.delete(AccessName, AccessPath)
}

func (p Policy) ClearRefresh() *http.Cookie {
	return p.delete(RefreshName, RefreshPath)
}

func (p Policy) create(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (p Policy) delete(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
