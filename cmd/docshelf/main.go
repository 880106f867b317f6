// Command docshelf serves the document site: the index, search and
// document pages plus the JSON API, backed by the remote CSV feeds.
//
// Usage:
//
//	go run ./cmd/docshelf [-config configs/development.yaml]
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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/related"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/site/handler"
	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/site/render"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/middleware"
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
	slog.Info("starting docshelf", "port", cfg.Server.Port, "feed_list", cfg.Feeds.ListURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	cat, redisClient, closeCatalog := catalog.Open(cfg, m)
	defer closeCatalog()

	// Warm the catalog so the first visitor does not pay for the feed fetch.
	go func() {
		if _, _, err := cat.Records(ctx); err != nil {
			slog.Warn("initial catalog load failed", "error", err)
		}
	}()

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	renderer, err := render.New()
	if err != nil {
		slog.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("catalog", cat.HealthCheck())
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, true))
	} else {
		checker.Register("redis", health.Ping(nil, true))
	}

	h := handler.New(cat, related.NewSeeded(), renderer, collector, m, cfg.Site)

	mux := http.NewServeMux()
	h.Register(mux, middleware.CORS(cfg.CORS))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLimiter(cfg.RateLimit, 10*time.Minute)
		go sweepLimiter(ctx, limiter)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Trace(cfg.Logging.SlowRequest)(chain)
	chain = middleware.AccessLog(chain)
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

	slog.Info("docshelf listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("docshelf stopped")
}

func sweepLimiter(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
