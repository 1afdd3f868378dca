package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pmsync/pmsync/internal/activity"
	"github.com/pmsync/pmsync/internal/broadcast"
	"github.com/pmsync/pmsync/internal/config"
	"github.com/pmsync/pmsync/internal/db"
	"github.com/pmsync/pmsync/internal/dispatch"
	"github.com/pmsync/pmsync/internal/httpapi"
	"github.com/pmsync/pmsync/internal/idempotency"
	"github.com/pmsync/pmsync/internal/metrics"
	"github.com/pmsync/pmsync/internal/mutate"
	"github.com/pmsync/pmsync/internal/pmauth"
	"github.com/pmsync/pmsync/internal/resilience"
	"github.com/pmsync/pmsync/internal/shutdown"
	"github.com/pmsync/pmsync/internal/store"
	"github.com/pmsync/pmsync/internal/wsregistry"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "pmsyncd").Logger()
	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	dbURL := env("DATABASE_URL", "")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	var validator *pmauth.Validator
	if cfg.AuthEnabled {
		validator = pmauth.NewValidator(pmauth.ValidatorConfig{
			HS256Secret: env("PM_JWT_HS256_SECRET", ""),
			JWKSURL:     env("PM_JWT_JWKS_URL", ""),
			Issuer:      env("PM_JWT_ISSUER", ""),
			Audience:    env("PM_JWT_AUDIENCE", ""),
		})
		log.Info().Msg("authentication enabled")
	} else {
		log.Warn().Msg("authentication disabled (desktop mode) — do not run this configuration on a shared deployment")
	}

	s := store.New(pool)
	hub := broadcast.New(cfg.Broadcast, log.Logger)
	rec := activity.NewRecorder(s.Activity, hub)
	registry := wsregistry.New(cfg.ConnLimits)
	coordinator := shutdown.New()
	activity.NewRetentionSweeper(s.Activity, cfg.ActivityLog).Start(ctx)

	workItems := mutate.NewWorkItemMutator(s, rec, hub)
	sprints := mutate.NewSprintMutator(s, rec, hub)
	comments := mutate.NewCommentMutator(s, rec, hub)
	deps := mutate.NewDependencyMutator(s, rec, hub)
	timeEntries := mutate.NewTimeEntryMutator(s, rec)

	recorder := metrics.New()
	idemp := idempotency.New(pool, cfg.Idempotency, log.Logger)
	breaker := resilience.NewBreaker("work_items_read", cfg.CircuitBreaker)
	retrier := resilience.NewRetrier(cfg.Retry)

	d := &dispatch.Dispatcher{
		WorkItems:   workItems,
		Sprints:     sprints,
		Comments:    comments,
		Deps:        deps,
		TimeEntries: timeEntries,
		Store:       s,
		Registry:    registry,
		Idempotency: idemp,
		Breaker:     breaker,
		Retrier:     retrier,
		Metrics:     recorder,
		Timeout:     time.Duration(cfg.Handler.TimeoutSecs) * time.Second,
		Log:         log.Logger,
	}

	wsUpgrader := &httpapi.WebSocketUpgrader{
		Validator:       validator,
		Registry:        registry,
		Dispatcher:      d,
		Hub:             hub,
		Coordinator:     coordinator,
		Config:          cfg.WebSocket,
		ShutdownTimeout: 30,
		RateLimit:       cfg.RateLimit,
	}

	srv := &httpapi.Server{
		Store:           s,
		WorkItems:       workItems,
		Sprints:         sprints,
		Comments:        comments,
		Deps:            deps,
		TimeEntries:     timeEntries,
		Validator:       validator,
		Coordinator:     coordinator,
		WS:              wsUpgrader,
		Dispatcher:      d,
		RateLimitConfig: httpapi.DefaultRateLimitConfig,
	}

	httpAddr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting http server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	coordinator.Shutdown()

	drainDeadline := time.Now().Add(30 * time.Second)
	for coordinator.HolderCount() > 0 && time.Now().Before(drainDeadline) {
		time.Sleep(100 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("server stopped")
}
