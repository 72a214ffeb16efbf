package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/session_gate/internal/config"
	"github.com/Skotchmaster/session_gate/internal/db"
	"github.com/Skotchmaster/session_gate/internal/events"
	"github.com/Skotchmaster/session_gate/internal/models"
	"github.com/Skotchmaster/session_gate/internal/store"
)

type backend struct {
	store  store.Store
	purger purger
	ready  func(ctx context.Context) error
	close  func()
}

type userStore interface {
	store.Store
	purger
	CreateUser(ctx context.Context, u *models.User) error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	var (
		primary userStore
		checks  []func(context.Context) error
		closers []func()
	)

	switch cfg.StoreBackend {
	case "postgres", "sqlite":
		gdb, err := db.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		gs := store.NewGormStore(gdb)
		if err := gs.Migrate(ctx); err != nil {
			return nil, err
		}
		primary = gs
		checks = append(checks, func(ctx context.Context) error { return db.Ping(ctx, gdb) })
		closers = append(closers, func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
	default:
		primary = store.NewMemoryStore()
	}

	if cfg.SeedDemoUsers {
		users, err := store.DemoUsers()
		if err != nil {
			return nil, fmt.Errorf("demo users: %w", err)
		}
		if err := store.Seed(ctx, primary, users); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	b := &backend{store: primary, purger: primary}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.store = store.Combine(primary, store.NewRedisRevocationSet(rdb, "session:rt"))
		// redis expires entries itself
		b.purger = nil
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		closers = append(closers, func() { _ = rdb.Close() })
	}

	b.ready = func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			errs = append(errs, check(ctx))
		}
		return errors.Join(errs...)
	}
	b.close = func() {
		for _, c := range closers {
			c()
		}
	}
	return b, nil
}

// openPublisher fans session events out to every configured sink. A sink
// that cannot be reached at startup is skipped.
func openPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (events.Publisher, func()) {
	var (
		sinks   events.Multi
		closers []func()
	)

	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kp)
		closers = append(closers, func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka_close_failed", "error", err)
			}
		})
	}

	if cfg.ESURL != "" {
		es, err := events.NewElasticSink(ctx, events.ElasticConfig{
			URL:      cfg.ESURL,
			Username: cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		})
		if err != nil {
			logger.Warn("elasticsearch_unavailable", "error", err)
		} else {
			sinks = append(sinks, es)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 0 {
		return events.Nop{}, closeAll
	}
	return sinks, closeAll
}
