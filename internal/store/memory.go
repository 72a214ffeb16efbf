package store

import (
	"context"
	"sync"
	"time"

	"github.com/Skotchmaster/session_gate/internal/models"
)

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

// MemoryStore is the reference in-process store. Every mutation of the
// revocation set happens under one mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]models.User
	byName  map[string]string
	refresh map[string]refreshEntry
	now     func() time.Time
}

func NewMemoryStore(users ...models.User) *MemoryStore {
	s := &MemoryStore{
		users:   make(map[string]models.User),
		byName:  make(map[string]string),
		refresh: make(map[string]refreshEntry),
		now:     time.Now,
	}
	for _, u := range users {
		_ = s.CreateUser(context.Background(), &u)
	}
	return s
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[u.Username]; ok {
		return ErrUserAlreadyExists
	}
	u.EnsureID()
	if _, ok := s.users[u.ID]; ok {
		return ErrUserAlreadyExists
	}
	s.users[u.ID] = *u
	s.byName[u.Username] = u.ID
	return nil
}

func (s *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *MemoryStore) RegisterRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh[HashToken(token)] = refreshEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) IsRefreshTokenValid(ctx context.Context, token, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.refresh[HashToken(token)]
	if !ok {
		return false, nil
	}
	return e.userID == userID && s.now().Before(e.expiresAt), nil
}

func (s *MemoryStore) RevokeRefreshToken(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, HashToken(token))
	return nil
}

// PurgeExpired drops entries whose refresh token has expired.
func (s *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for k, e := range s.refresh {
		if !now.Before(e.expiresAt) {
			delete(s.refresh, k)
			n++
		}
	}
	return n, nil
}
