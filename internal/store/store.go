// Package store holds user records and the refresh-token revocation set.
//
// The revocation set maps a refresh token to the user it was issued for and
// is the only server-side session state: an entry is created on login and
// removed on logout. Implementations must make each operation atomic for a
// given token so a concurrent logout can never be undone by a registration.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/Skotchmaster/session_gate/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUnavailable       = errors.New("credential store unavailable")
)

type UserDirectory interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

type RevocationSet interface {
	RegisterRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error
	IsRefreshTokenValid(ctx context.Context, token, userID string) (bool, error)
	// RevokeRefreshToken is idempotent: revoking an unknown token is not an error.
	RevokeRefreshToken(ctx context.Context, token string) error
}

type Store interface {
	UserDirectory
	RevocationSet
}

type combined struct {
	UserDirectory
	RevocationSet
}

// Combine serves users from one backend and the revocation set from another,
// e.g. postgres users with a redis revocation set.
func Combine(users UserDirectory, tokens RevocationSet) Store {
	return combined{UserDirectory: users, RevocationSet: tokens}
}

// HashToken is the key under which a refresh token is persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
