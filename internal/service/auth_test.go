package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Skotchmaster/session_gate/internal/events"
	"github.com/Skotchmaster/session_gate/internal/hash"
	"github.com/Skotchmaster/session_gate/internal/models"
	"github.com/Skotchmaster/session_gate/internal/store"
	"github.com/Skotchmaster/session_gate/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// brokenStore fails every call after the user lookup with err.
type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) RegisterRefreshToken(context.Context, string, string, time.Time) error {
	return b.err
}

func (b brokenStore) IsRefreshTokenValid(context.Context, string, string) (bool, error) {
	return false, b.err
}

func (b brokenStore) RevokeRefreshToken(context.Context, string) error {
	return b.err
}

var (
	usersOnce sync.Once
	testUsers []models.User
)

func fixtures(t *testing.T) []models.User {
	t.Helper()
	usersOnce.Do(func() {
		adminHash, err := hash.HashPassword("admin123")
		require.NoError(t, err)
		userHash, err := hash.HashPassword("user123")
		require.NoError(t, err)
		testUsers = []models.User{
			{ID: "user-1", Username: "admin", PasswordHash: adminHash, Role: models.RoleAdmin},
			{ID: "user-2", Username: "user", PasswordHash: userHash, Role: models.RoleUser},
		}
	})
	return testUsers
}

type env struct {
	svc   *AuthService
	store *store.MemoryStore
	clock *fakeClock
	rec   *recorder
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	codec, err := tokens.NewCodec(tokens.Config{
		AccessSecret:  []byte("service-test-access"),
		RefreshSecret: []byte("service-test-refresh"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Now:           clock.Now,
	})
	require.NoError(t, err)

	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}

	st := store.NewMemoryStore(fixtures(t)...)
	rec := &recorder{}
	svc := NewAuthService(codec, st, opts)
	svc.Events = rec

	return &env{svc: svc, store: st, clock: clock, rec: rec}
}

func TestLogin_Success(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	assert.Equal(t, models.Summary{ID: "user-1", Username: "admin", Role: models.RoleAdmin}, res.User)
	assert.Equal(t, e.clock.Now().Add(15*time.Minute), res.AccessExp)
	assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), res.RefreshExp)

	access, ok := e.svc.Codec.Verify(tokens.Access, res.AccessToken)
	require.True(t, ok)
	assert.Equal(t, "user-1", access.UserID)
	assert.Equal(t, "admin", access.Username)
	assert.Equal(t, "admin", access.Role)

	_, ok = e.svc.Codec.Verify(tokens.Refresh, res.RefreshToken)
	require.True(t, ok)

	valid, err := e.store.IsRefreshTokenValid(ctx, res.RefreshToken, "user-1")
	require.NoError(t, err)
	assert.True(t, valid)

	assert.Equal(t, []string{events.TypeLogin}, e.rec.types())
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{name: "empty username", username: "", password: "admin123", want: ErrValidation},
		{name: "empty password", username: "admin", password: "", want: ErrValidation},
		{name: "unknown user", username: "ghost", password: "admin123", want: ErrInvalidCredentials},
		{name: "wrong password", username: "admin", password: "wrong", want: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)

			res, err := e.svc.Login(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)

			for _, typ := range e.rec.types() {
				assert.NotEqual(t, events.TypeLogin, typ)
			}
		})
	}
}

func TestLogin_StoreFailureFailsClosed(t *testing.T) {
	e := newEnv(t, nil)
	e.svc.Store = brokenStore{Store: e.store, err: errors.New("connection refused")}

	res, err := e.svc.Login(context.Background(), "admin", "admin123")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, res)
}

func TestRefresh_IssuesAccessTokenWithSameIdentity(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	login, err := e.svc.Login(ctx, "user", "user123")
	require.NoError(t, err)

	e.clock.Advance(20 * time.Minute)
	_, ok := e.svc.Codec.Verify(tokens.Access, login.AccessToken)
	require.False(t, ok, "original access token should have expired")

	res, err := e.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, res.RefreshToken)
	assert.Equal(t, e.clock.Now().Add(15*time.Minute), res.AccessExp)

	claims, ok := e.svc.Codec.Verify(tokens.Access, res.AccessToken)
	require.True(t, ok)
	assert.Equal(t, tokens.Subject{UserID: "user-2", Username: "user", Role: "user"}, claims.Subject())
	assert.Equal(t, res.Claims, *claims)

	assert.Equal(t, []string{events.TypeLogin, events.TypeRefreshed}, e.rec.types())
}

func TestRefresh_Denied(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T, e *env, login *LoginResult) string
		want  error
	}{
		{
			name:  "no token",
			token: func(*testing.T, *env, *LoginResult) string { return "" },
			want:  ErrUnauthenticated,
		},
		{
			name:  "garbage",
			token: func(*testing.T, *env, *LoginResult) string { return "not-a-jwt" },
			want:  ErrInvalidOrExpiredToken,
		},
		{
			name:  "access token presented as refresh",
			token: func(_ *testing.T, _ *env, l *LoginResult) string { return l.AccessToken },
			want:  ErrInvalidOrExpiredToken,
		},
		{
			name: "expired refresh token",
			token: func(_ *testing.T, e *env, l *LoginResult) string {
				e.clock.Advance(7*24*time.Hour + time.Second)
				return l.RefreshToken
			},
			want: ErrInvalidOrExpiredToken,
		},
		{
			name: "revoked by logout",
			token: func(t *testing.T, e *env, l *LoginResult) string {
				require.NoError(t, e.svc.LogOut(context.Background(), l.RefreshToken))
				return l.RefreshToken
			},
			want: ErrRevokedToken,
		},
		{
			name: "never registered",
			token: func(t *testing.T, e *env, _ *LoginResult) string {
				tok, err := e.svc.Codec.IssueRefresh(tokens.Subject{UserID: "user-1", Username: "admin", Role: "admin"})
				require.NoError(t, err)
				return tok.Value
			},
			want: ErrRevokedToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			login, err := e.svc.Login(context.Background(), "admin", "admin123")
			require.NoError(t, err)

			res, err := e.svc.Refresh(context.Background(), tt.token(t, e, login))
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestRefresh_UserRemovedIsRevoked(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	login, err := e.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	e.svc.Store = store.Combine(store.NewMemoryStore(), e.store)

	_, err = e.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestRefresh_WithoutRevocationCheckIgnoresLogout(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.CheckRevocation = false })
	ctx := context.Background()

	login, err := e.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	require.NoError(t, e.svc.LogOut(ctx, login.RefreshToken))

	res, err := e.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestRefresh_StoreFailureFailsClosed(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	login, err := e.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	e.svc.Store = brokenStore{Store: e.store, err: errors.New("timeout")}

	res, err := e.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedToken)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, res)
	assert.Contains(t, e.rec.types(), events.TypeRefreshDenied)
}

func TestRefresh_Rotation(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.RotateRefresh = true })
	ctx := context.Background()

	login, err := e.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	res, err := e.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, res.RefreshToken)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), res.RefreshExp)

	_, err = e.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedToken, "rotated-out token must be refused")

	next, err := e.svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, next.AccessToken)

	assert.Contains(t, e.rec.types(), events.TypeRefreshRotated)
}

func TestRefresh_ConcurrentCallsAllSucceed(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	login, err := e.svc.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Refresh(ctx, login.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestLogOut(t *testing.T) {
	t.Run("empty token is a no-op", func(t *testing.T) {
		e := newEnv(t, nil)
		assert.NoError(t, e.svc.LogOut(context.Background(), ""))
		assert.Empty(t, e.rec.types())
	})

	t.Run("revokes and is idempotent", func(t *testing.T) {
		e := newEnv(t, nil)
		ctx := context.Background()

		login, err := e.svc.Login(ctx, "admin", "admin123")
		require.NoError(t, err)

		require.NoError(t, e.svc.LogOut(ctx, login.RefreshToken))
		require.NoError(t, e.svc.LogOut(ctx, login.RefreshToken))

		valid, err := e.store.IsRefreshTokenValid(ctx, login.RefreshToken, "user-1")
		require.NoError(t, err)
		assert.False(t, valid)

		e.rec.mu.Lock()
		last := e.rec.events[len(e.rec.events)-1]
		e.rec.mu.Unlock()
		assert.Equal(t, events.TypeLogout, last.Type)
		assert.Equal(t, "user-1", last.UserID)
	})

	t.Run("unknown token is not an error", func(t *testing.T) {
		e := newEnv(t, nil)
		assert.NoError(t, e.svc.LogOut(context.Background(), "never-issued"))
	})

	t.Run("store failure is reported", func(t *testing.T) {
		e := newEnv(t, nil)
		e.svc.Store = brokenStore{Store: e.store, err: errors.New("down")}
		assert.ErrorIs(t, e.svc.LogOut(context.Background(), "some-token"), ErrUnavailable)
	})
}
