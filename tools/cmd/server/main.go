package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/analytics"
	"github.com/patrickwarner/adsimulator/internal/api"
	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/db"
	"github.com/patrickwarner/adsimulator/internal/geoip"
	"github.com/patrickwarner/adsimulator/internal/middleware"
	"github.com/patrickwarner/adsimulator/internal/observability"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	geoSvc, err := geoip.Open(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip unavailable, bid modifiers need an explicit country", zap.Error(err))
	}
	defer func() { _ = geoSvc.Close() }()

	srvDeps := api.NewServer(logger, metricsRegistry, cfg, geoSvc, time.Now().UnixNano())

	if cfg.SnapshotsEnabled {
		store, err := db.InitRedis(ctx, cfg.RedisAddr, cfg.SnapshotTTL)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer store.Close()
		srvDeps.Snapshots = store
		srvDeps.Sinks.Snapshots = store
	}

	if cfg.RunStoreEnabled {
		pg, err := db.OpenRunStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		defer pg.Close()
		srvDeps.Sinks.Runs = pg
	}

	if cfg.AnalyticsEnabled {
		analyticsSvc, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime, metricsRegistry)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer analyticsSvc.Close()
		srvDeps.Sinks.Analytics = analyticsSvc
	}

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))
	srvDeps.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, cfg.ServiceName),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Simulator API running",
		zap.String("addr", addr),
		zap.Bool("snapshots", cfg.SnapshotsEnabled),
		zap.Bool("run_store", cfg.RunStoreEnabled),
		zap.Bool("analytics", cfg.AnalyticsEnabled))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	observability.ServeSampler.LogStats(logger, "serve")
	for _, st := range srvDeps.SimulationLimiter.Stats() {
		if st.Rejected > 0 {
			logger.Info("simulation rate limiting", zap.String("client", st.Key), zap.Int64("rejected", st.Rejected), zap.Int64("total", st.Total))
		}
	}

	return nil
}
