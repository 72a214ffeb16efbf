package store

import (
	"context"
	"errors"

	"github.com/Skotchmaster/session_gate/internal/hash"
	"github.com/Skotchmaster/session_gate/internal/models"
)

type userCreator interface {
	CreateUser(ctx context.Context, u *models.User) error
}

// DemoUsers returns the two seeded accounts: admin/admin123 and user/user123.
func DemoUsers() ([]models.User, error) {
	seed := []struct {
		id, username, password string
		role                   models.Role
	}{
		{"user-1", "admin", "admin123", models.RoleAdmin},
		{"user-2", "user", "user123", models.RoleUser},
	}

	users := make([]models.User, 0, len(seed))
	for _, s := range seed {
		h, err := hash.HashPassword(s.password)
		if err != nil {
			return nil, err
		}
		users = append(users, models.User{ID: s.id, Username: s.username, PasswordHash: h, Role: s.role})
	}
	return users, nil
}

// Seed creates users, skipping usernames that already exist.
func Seed(ctx context.Context, dst userCreator, users []models.User) error {
	for i := range users {
		u := users[i]
		if err := dst.CreateUser(ctx, &u); err != nil && !errors.Is(err, ErrUserAlreadyExists) {
			return err
		}
	}
	return nil
}
