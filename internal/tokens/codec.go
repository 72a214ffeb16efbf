// Package tokens signs and verifies the two token classes used for sessions.
// Access and refresh tokens are HS256 JWTs signed with independent secrets;
// a token only ever verifies against the secret of its own class.
package tokens

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Class string

const (
	Access  Class = "access"
	Refresh Class = "refresh"
)

var (
	ErrUnknownClass  = errors.New("unknown token class")
	ErrClassMismatch = errors.New("token class mismatch")
	ErrNoSubject     = errors.New("token has no subject")
)

// Subject is the identity carried by both token classes.
type Subject struct {
	UserID   string
	Username string
	Role     string
}

type Claims struct {
	ID        string
	UserID    string
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (c Claims) Subject() Subject {
	return Subject{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

type Token struct {
	Value  string
	Class  Class
	Claims Claims
}

type jwtClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     Class  `json:"typ"`
	jwt.RegisteredClaims
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Leeway is the tolerated clock skew when checking expiry.
	Leeway time.Duration
	Issuer string
	Now    func() time.Time
}

type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	leeway        time.Duration
	issuer        string
	now           func() time.Time
}

func NewCodec(cfg Config) (*Codec, error) {
	switch {
	case len(cfg.AccessSecret) == 0:
		return nil, errors.New("tokens: access secret is empty")
	case len(cfg.RefreshSecret) == 0:
		return nil, errors.New("tokens: refresh secret is empty")
	case bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret):
		return nil, errors.New("tokens: access and refresh secrets must differ")
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("tokens: lifetimes must be positive")
	case cfg.Leeway < 0:
		return nil, errors.New("tokens: leeway must not be negative")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		accessSecret:  bytes.Clone(cfg.AccessSecret),
		refreshSecret: bytes.Clone(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		leeway:        cfg.Leeway,
		issuer:        cfg.Issuer,
		now:           now,
	}, nil
}

func (c *Codec) TTL(class Class) time.Duration {
	switch class {
	case Access:
		return c.accessTTL
	case Refresh:
		return c.refreshTTL
	}
	return 0
}

func (c *Codec) secret(class Class) ([]byte, error) {
	switch class {
	case Access:
		return c.accessSecret, nil
	case Refresh:
		return c.refreshSecret, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
}

func (c *Codec) IssueAccess(sub Subject) (Token, error) {
	return c.Issue(Access, sub, c.accessTTL)
}

func (c *Codec) IssueRefresh(sub Subject) (Token, error) {
	return c.Issue(Refresh, sub, c.refreshTTL)
}

// Issue signs sub for class with issuedAt = now and expiresAt = now + ttl.
// Times are truncated to whole seconds, the precision of JWT numeric dates,
// so the returned claims equal what Verify decodes.
func (c *Codec) Issue(class Class, sub Subject, ttl time.Duration) (Token, error) {
	key, err := c.secret(class)
	if err != nil {
		return Token{}, err
	}
	if ttl <= 0 {
		return Token{}, errors.New("tokens: ttl must be positive")
	}
	if sub.UserID == "" {
		return Token{}, ErrNoSubject
	}

	issuedAt := c.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl).Truncate(time.Second)

	claims := jwtClaims{
		Username: sub.Username,
		Role:     sub.Role,
		Type:     class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("tokens: sign %s token: %w", class, err)
	}

	return Token{
		Value: signed,
		Class: class,
		Claims: Claims{
			ID:        claims.ID,
			UserID:    sub.UserID,
			Username:  sub.Username,
			Role:      sub.Role,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// Verify returns the decoded claims and true, or nil and false when raw is
// malformed, signed for another class, or expired. It never returns an error;
// use Check when the reason matters (logging).
func (c *Codec) Verify(class Class, raw string) (*Claims, bool) {
	claims, err := c.Check(class, raw)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Check is Verify with the failure reason.
func (c *Codec) Check(class Class, raw string) (*Claims, error) {
	if raw == "" {
		return nil, jwt.ErrTokenMalformed
	}
	key, err := c.secret(class)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var wc jwtClaims
	tkn, err := jwt.NewParser(opts...).ParseWithClaims(raw, &wc, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if wc.Type != class {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrClassMismatch, wc.Type, class)
	}
	if wc.Subject == "" {
		return nil, ErrNoSubject
	}

	// valid strictly before expiry
	expiresAt := wc.ExpiresAt.Time.UTC()
	if !c.now().Before(expiresAt.Add(c.leeway)) {
		return nil, jwt.ErrTokenExpired
	}

	claims := &Claims{
		ID:        wc.ID,
		UserID:    wc.Subject,
		Username:  wc.Username,
		Role:      wc.Role,
		ExpiresAt: expiresAt,
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// Expired reports whether err from Check was caused by expiry alone.
func Expired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
