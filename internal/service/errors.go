package service

import "errors"

var (
	ErrValidation = errors.New("username and password are required")
	// ErrInvalidCredentials is returned for an unknown user and for a wrong
	// password alike.
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnauthenticated       = errors.New("no token presented")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrRevokedToken          = errors.New("token has been revoked")
	ErrUnavailable           = errors.New("session store unavailable")
)
