// Package main is the entry point for the listing submission server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/attribute"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/backend"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/config"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/location"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/media"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/observability"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/transport"
	"github.com/this-4mirho3ein/turkiye-temp-sub001/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "listingd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.NewMetrics()

	// Step 4: Initialize the draft store.
	store, pool, err := buildDraftStore(ctx, cfg.Workflow, logger)
	if err != nil {
		logger.Error("draft store initialization failed", zap.Error(err))
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	// Step 5: Build the backend client and upload transferrer.
	client := backend.NewClient(cfg.Backend, logger)
	transferrer := backend.NewTransferrer(cfg.Backend, logger)

	// Step 6: Build the domain components around the client.
	attributes := attribute.NewEngine(client, cfg.Lookup.Cache, logger)
	locations := location.NewResolver(client, cfg.Lookup.Cache, logger)
	coordinator := media.NewCoordinator(client, transferrer, cfg.Upload, logger)
	coordinator.SetMetricsRecorder(metrics)

	engine := workflow.NewEngine(store, client, attributes, locations, coordinator,
		cfg.Workflow.DraftTTL, logger)
	engine.SetMetricsRecorder(metrics)

	// Step 7: Readiness checks and breaker gauge.
	health := observability.NewHealthChecker()
	if pool != nil {
		health.Register("draft_store", pool.Ping)
	}
	health.Register("backend_breaker", func(context.Context) error {
		if client.Breaker().State() == backend.BreakerOpen {
			return fmt.Errorf("circuit breaker is open")
		}
		return nil
	})

	// Step 8: Build the HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Drafts:       transport.NewDraftHandler(engine),
		Media:        transport.NewMediaHandler(engine, cfg.Upload.MaxAssetSize),
		Lookups:      transport.NewLookupHandler(attributes, client),
		Metrics:      metrics,
		Health:       health,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go engine.RunExpirySweep(bgCtx, cfg.Workflow.ExpirySweepInterval)
	go pollBreakerState(bgCtx, client, metrics)

	// Step 10: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store_driver", cfg.Workflow.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildDraftStore creates the draft store based on config. The returned pool
// is non-nil only for the postgres driver.
func buildDraftStore(ctx context.Context, cfg config.WorkflowConfig, logger *zap.Logger) (workflow.DraftStore, *pgxpool.Pool, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Info("using in-memory draft store")
		return workflow.NewMemoryDraftStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.Store.DSNEnv)
		if dsn == "" && cfg.Store.DSNEnv != "" {
			return nil, nil, fmt.Errorf("draft store: %s environment variable not set", cfg.Store.DSNEnv)
		}
		if dsn == "" {
			logger.Warn("draft store DSN not configured, using in-memory store")
			return workflow.NewMemoryDraftStore(), nil, nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Store.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.Store.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.Store.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("draft store: ping: %w", err)
		}

		return workflow.NewPgDraftStore(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported draft store driver: %q", cfg.Store.Driver)
	}
}

// pollBreakerState publishes the backend breaker state to the gauge.
func pollBreakerState(ctx context.Context, client *backend.Client, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetCircuitBreakerState(float64(client.Breaker().State()))
		}
	}
}
