package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationSet keeps one key per refresh token holding the user id,
// expiring together with the token. Every operation is a single-key command.
type RedisRevocationSet struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRevocationSet(rdb redis.UniversalClient, prefix string) *RedisRevocationSet {
	if prefix == "" {
		prefix = "rt"
	}
	return &RedisRevocationSet{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisRevocationSet) key(token string) string {
	return s.prefix + ":" + HashToken(token)
}

func (s *RedisRevocationSet) RegisterRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, s.key(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisRevocationSet) IsRefreshTokenValid(ctx context.Context, token, userID string) (bool, error) {
	got, err := s.rdb.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return got == userID, nil
}

func (s *RedisRevocationSet) RevokeRefreshToken(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
