package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Skotchmaster/session_gate/internal/events"
	"github.com/Skotchmaster/session_gate/internal/hash"
	"github.com/Skotchmaster/session_gate/internal/logging"
	"github.com/Skotchmaster/session_gate/internal/models"
	"github.com/Skotchmaster/session_gate/internal/store"
	"github.com/Skotchmaster/session_gate/internal/tokens"
)

const publishTimeout = 5 * time.Second

type Options struct {
	// CheckRevocation requires a refresh token to be present in the
	// revocation set. Production deployments keep it on.
	CheckRevocation bool
	// RotateRefresh issues a new refresh token on every refresh and revokes
	// the one presented.
	RotateRefresh bool
	StoreTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		CheckRevocation: true,
		StoreTimeout:    2 * time.Second,
	}
}

type AuthService struct {
	Codec         *tokens.Codec
	Store         store.Store
	Events        events.Publisher
	Opts          Options
	CheckPassword func(hash, password string) bool
}

func NewAuthService(codec *tokens.Codec, st store.Store, opts Options) *AuthService {
	return &AuthService{
		Codec:         codec,
		Store:         st,
		Events:        events.Nop{},
		Opts:          opts,
		CheckPassword: hash.CheckPassword,
	}
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         models.Summary
}

type RefreshResult struct {
	AccessToken string
	AccessExp   time.Time
	// RefreshToken and RefreshExp are set only when the token was rotated.
	RefreshToken string
	RefreshExp   time.Time
	Claims       tokens.Claims
}

// compared against when the username is unknown so both failure paths cost
// one bcrypt comparison
var dummyHash = sync.OnceValue(func() string {
	h, _ := hash.HashPassword("no-such-user-placeholder")
	return h
})

func (h *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		l.Warn("login_failed", "status", 400, "reason", "missing fields")
		return nil, ErrValidation
	}

	sctx, cancel := h.storeCtx(ctx)
	user, err := h.Store.FindUserByUsername(sctx, username)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.checkPassword(dummyHash(), password)
			l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
			h.publish(ctx, events.Event{Type: events.TypeLoginFailed, Username: username, Reason: "invalid_credentials"})
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 503, "reason", "user lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !h.checkPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		h.publish(ctx, events.Event{Type: events.TypeLoginFailed, UserID: user.ID, Username: username, Reason: "invalid_credentials"})
		return nil, ErrInvalidCredentials
	}

	sub := tokens.Subject{UserID: user.ID, Username: user.Username, Role: string(user.Role)}
	access, err := h.Codec.IssueAccess(sub)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create access token", "error", err)
		return nil, err
	}
	refresh, err := h.Codec.IssueRefresh(sub)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create refresh token", "error", err)
		return nil, err
	}

	sctx, cancel = h.storeCtx(ctx)
	err = h.Store.RegisterRefreshToken(sctx, refresh.Value, user.ID, refresh.Claims.ExpiresAt)
	cancel()
	if err != nil {
		l.Error("login_failed", "status", 503, "reason", "cannot register refresh token", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	l.Info("login_successful", "user_id", user.ID)
	h.publish(ctx, events.Event{Type: events.TypeLogin, UserID: user.ID, Username: user.Username, Role: string(user.Role)})

	return &LoginResult{
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		AccessExp:    access.Claims.ExpiresAt,
		RefreshExp:   refresh.Claims.ExpiresAt,
		User:         user.Summary(),
	}, nil
}

// LogOut removes refreshToken from the revocation set. An empty or unknown
// token is not an error. A store failure is returned so the caller can log
// it, but the caller must still clear the session cookies.
func (h *AuthService) LogOut(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken == "" {
		return nil
	}

	sctx, cancel := h.storeCtx(ctx)
	err := h.Store.RevokeRefreshToken(sctx, refreshToken)
	cancel()
	if err != nil {
		l.Error("logout_failed", "reason", "cannot revoke refresh token", "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e := events.Event{Type: events.TypeLogout}
	if claims, ok := h.Codec.Verify(tokens.Refresh, refreshToken); ok {
		e.UserID, e.Username, e.Role = claims.UserID, claims.Username, claims.Role
	}
	h.publish(ctx, e)
	l.Info("logout_successful", "user_id", e.UserID)
	return nil
}

// Refresh mints a new access token carrying the refresh token's identity.
func (h *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := h.Codec.Check(tokens.Refresh, refreshToken)
	if err != nil {
		l.Warn("refresh_denied", "status", 401, "reason", "invalid or expired refresh token", "error", err)
		h.publish(ctx, events.Event{Type: events.TypeRefreshDenied, Reason: "invalid_or_expired"})
		return nil, ErrInvalidOrExpiredToken
	}
	l = l.With("user_id", claims.UserID)

	if h.Opts.CheckRevocation {
		if err := h.checkRevocation(ctx, refreshToken, claims); err != nil {
			reason := "revoked"
			if errors.Is(err, ErrUnavailable) {
				reason = "store_unavailable"
			}
			l.Warn("refresh_denied", "reason", reason, "error", err)
			h.publish(ctx, events.Event{Type: events.TypeRefreshDenied, UserID: claims.UserID, Username: claims.Username, Reason: reason})
			return nil, err
		}
	}

	sub := claims.Subject()
	access, err := h.Codec.IssueAccess(sub)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot create access token", "error", err)
		return nil, err
	}

	res := &RefreshResult{
		AccessToken: access.Value,
		AccessExp:   access.Claims.ExpiresAt,
		Claims:      access.Claims,
	}

	evType := events.TypeRefreshed
	if h.Opts.RotateRefresh {
		if err := h.rotate(ctx, refreshToken, sub, res); err != nil {
			l.Error("refresh_failed", "status", 503, "reason", "cannot rotate refresh token", "error", err)
			return nil, err
		}
		evType = events.TypeRefreshRotated
	}

	l.Info("refresh_successful", "rotated", h.Opts.RotateRefresh)
	h.publish(ctx, events.Event{Type: evType, UserID: sub.UserID, Username: sub.Username, Role: sub.Role})
	return res, nil
}

// checkRevocation denies with ErrRevokedToken. A store failure also matches
// ErrUnavailable.
func (h *AuthService) checkRevocation(ctx context.Context, token string, claims *tokens.Claims) error {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()

	ok, err := h.Store.IsRefreshTokenValid(sctx, token, claims.UserID)
	if err != nil {
		return fmt.Errorf("%w: %w: %v", ErrRevokedToken, ErrUnavailable, err)
	}
	if !ok {
		return ErrRevokedToken
	}

	if _, err := h.Store.FindUserByID(sctx, claims.UserID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrRevokedToken
		}
		return fmt.Errorf("%w: %w: %v", ErrRevokedToken, ErrUnavailable, err)
	}
	return nil
}

func (h *AuthService) rotate(ctx context.Context, old string, sub tokens.Subject, res *RefreshResult) error {
	next, err := h.Codec.IssueRefresh(sub)
	if err != nil {
		return err
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()

	if err := h.Store.RegisterRefreshToken(sctx, next.Value, sub.UserID, next.Claims.ExpiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := h.Store.RevokeRefreshToken(sctx, old); err != nil {
		_ = h.Store.RevokeRefreshToken(sctx, next.Value)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res.RefreshToken = next.Value
	res.RefreshExp = next.Claims.ExpiresAt
	return nil
}

func (h *AuthService) checkPassword(hash, password string) bool {
	if h.CheckPassword == nil {
		return false
	}
	return h.CheckPassword(hash, password)
}

func (h *AuthService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.Opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.Opts.StoreTimeout)
}

func (h *AuthService) publish(ctx context.Context, e events.Event) {
	if h.Events == nil {
		return
	}
	e.At = time.Now().UTC()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := h.Events.Publish(pctx, e); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", e.Type, "error", err)
	}
}
