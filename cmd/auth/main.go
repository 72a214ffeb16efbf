package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/session_gate/internal/config"
	"github.com/Skotchmaster/session_gate/internal/cookies"
	"github.com/Skotchmaster/session_gate/internal/events"
	"github.com/Skotchmaster/session_gate/internal/gate"
	"github.com/Skotchmaster/session_gate/internal/httpserver"
	"github.com/Skotchmaster/session_gate/internal/logging"
	"github.com/Skotchmaster/session_gate/internal/metrics"
	loggingmw "github.com/Skotchmaster/session_gate/internal/middleware/logging"
	"github.com/Skotchmaster/session_gate/internal/service"
	"github.com/Skotchmaster/session_gate/internal/tokens"
)

const purgeInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", "session_gate", "env", cfg.Env)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := openBackend(initCtx, cfg)
	if err != nil {
		cancel()
		log.Fatalf("store init: %v", err)
	}
	publisher, closePublisher := openPublisher(initCtx, cfg, logger)
	cancel()

	codec, err := tokens.NewCodec(tokens.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Leeway:        cfg.ClockSkew,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	svc := service.NewAuthService(codec, st.store, service.Options{
		CheckRevocation: cfg.CheckRevocation,
		RotateRefresh:   cfg.RotateRefresh,
		StoreTimeout:    cfg.StoreTimeout,
	})
	m := metrics.New()
	svc.Events = events.Multi{m, publisher}

	policy := gate.DefaultPolicy()
	policy.PublicPaths = append(policy.PublicPaths, "/metrics")

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: loggingmw.NewRequestID}))
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(m.Middleware())
	e.Use(echomw.Secure())

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: httpserver.NewAuthHTTP(svc, cookies.Policy{Secure: cfg.SecureCookies()}),
		Gate:        gate.New(codec, policy),
		Pages:       gate.NewPageAuthorizer(codec),
		Ready:       st.ready,
		Metrics:     m.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	if st.purger != nil {
		go purgeLoop(purgeCtx, st.purger, logger)
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.StoreBackend, "rotation", cfg.RotateRefresh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	stopPurge()
	closePublisher()
	st.close()

	logger.Info("stopped")
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func purgeLoop(ctx context.Context, p purger, logger *slog.Logger) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge_failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged_refresh_tokens", "count", n)
			}
		}
	}
}
