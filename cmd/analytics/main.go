// Command analytics runs the standalone analytics service.
//
// It consumes search and view events from Kafka, aggregates them in memory
// (search counts, zero-result queries, latency percentiles, document views),
// snapshots the aggregate to PostgreSQL and serves it at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()

	// Snapshots are optional: without Postgres the service still aggregates.
	var store *aggregator.Store
	var pingDB func(context.Context) error
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		pingDB = db.Ping
		store = aggregator.NewStore(db, cfg.Analytics.SnapshotRetention)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate snapshot table", "error", err)
			os.Exit(1)
		}
		if latest, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not load latest snapshot", "error", err)
		} else if latest != nil {
			agg.Restore(*latest)
			slog.Info("restored analytics from snapshot",
				"total_searches", latest.TotalSearches,
				"total_views", latest.TotalViews,
			)
		}
		saved := make(chan struct{})
		go func() {
			defer close(saved)
			store.RunPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		}()
		// The final snapshot must be written before the pool closes.
		defer func() { <-saved }()
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.HandleEvent())
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	var lister analytics.SnapshotLister
	if store != nil {
		lister = store
	}
	analyticsHandler := analytics.NewHandler(agg, lister)

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(pingDB, true))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.CORS(cfg.CORS)(chain)
	chain = middleware.Recover(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ListenAndServe returns as soon as Shutdown starts; in-flight handlers
	// must finish before the deferred closes run.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("analytics service stopped")
}
