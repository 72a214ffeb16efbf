package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/session_gate/internal/config"
	"github.com/Skotchmaster/session_gate/internal/events"
)

func TestOpenBackend_MemoryWithSeed(t *testing.T) {
	ctx := context.Background()

	b, err := openBackend(ctx, &config.Config{StoreBackend: "memory", SeedDemoUsers: true})
	require.NoError(t, err)
	t.Cleanup(b.close)

	u, err := b.store.FindUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
	assert.NotNil(t, b.purger)
	assert.NoError(t, b.ready(ctx))
}

func TestOpenBackend_SQLiteWithRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	b, err := openBackend(ctx, &config.Config{
		StoreBackend: "sqlite",
		DatabaseURL:  ":memory:",
		RedisAddr:    mr.Addr(),
	})
	require.NoError(t, err)
	t.Cleanup(b.close)

	assert.Nil(t, b.purger, "redis expires entries itself")
	require.NoError(t, b.store.RegisterRefreshToken(ctx, "tok", "user-1", time.Now().Add(time.Minute)))
	assert.Len(t, mr.Keys(), 1)
	assert.NoError(t, b.ready(ctx))

	mr.Close()
	assert.Error(t, b.ready(ctx))
}

func TestOpenBackend_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := openBackend(context.Background(), &config.Config{StoreBackend: "memory", RedisAddr: addr})
	assert.Error(t, err)
}

func TestOpenPublisher_NoSinks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, closeAll := openPublisher(context.Background(), &config.Config{}, logger)
	defer closeAll()
	assert.Equal(t, events.Nop{}, p)
}
