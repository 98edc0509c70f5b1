// Package main is the entry point for the docflow workflow server.
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docflowhq/docflow/internal/assignment"
	"github.com/docflowhq/docflow/internal/config"
	"github.com/docflowhq/docflow/internal/directory"
	"github.com/docflowhq/docflow/internal/instance"
	"github.com/docflowhq/docflow/internal/notification"
	"github.com/docflowhq/docflow/internal/observability"
	"github.com/docflowhq/docflow/internal/permission"
	"github.com/docflowhq/docflow/internal/sla"
	"github.com/docflowhq/docflow/internal/template"
	"github.com/docflowhq/docflow/internal/transport"
	"github.com/docflowhq/docflow/model"
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
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

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

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "docflow", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Storage: PostgreSQL when a DSN is configured, in-memory otherwise.
	stores, pool, err := buildStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	// Assignment resolution.
	strategies := assignment.NewStrategyRegistry()
	assignment.RegisterBuiltins(strategies, stores.directory)
	resolver := assignment.NewResolver(stores.directory, strategies)

	// Templates, seeded from YAML files on disk.
	templateSvc := template.NewService(stores.templates, strategies)
	loader := template.NewLoader(templateSvc)
	seeded, err := loader.LoadAll(ctx, cfg.Templates.SeedDirectories)
	if err != nil {
		logger.Error("template seeding failed", zap.Error(err))
		return 1
	}
	_, totalTemplates, err := templateSvc.List(ctx, model.TemplateFilters{})
	if err != nil {
		logger.Error("template count failed", zap.Error(err))
		return 1
	}
	metrics.SetTemplatesLoaded(float64(totalTemplates))
	logger.Info("templates loaded",
		zap.Int("seeded", seeded),
		zap.Int("total", totalTemplates),
	)

	// Permissions.
	evaluator := permission.NewEvaluator(stores.grants, cfg.Permissions.CacheTTL)
	evaluator.SetMetrics(metrics)
	permissionSvc := permission.NewService(stores.grants, templateSvc, evaluator)

	// Notifications.
	notifier := notification.NewNotifier(stores.notifications, logger)
	notifier.SetMetrics(metrics)

	// Workflow engine.
	engine := instance.NewEngine(templateSvc, stores.instances, resolver, evaluator, notifier)

	// SLA monitor. The sweep lease lives in Redis when an address is
	// configured, so only one replica sweeps at a time.
	lease, redisClient := buildLease(cfg.Redis, cfg.SLA, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	monitor := sla.NewMonitor(stores.instances, notifier, lease, evaluator, metrics, logger, sla.Options{
		LeaseTTL:                 cfg.SLA.LeaseTTL,
		ExtendDeadlineOnReassign: cfg.SLA.ExtendDeadlineOnReassign,
		UpcomingWindow:           cfg.SLA.UpcomingWindow,
	})

	// HTTP surface.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	readinessChecks := observability.ReadinessChecks{
		TemplatesLoaded: func() bool { return totalTemplates > 0 || len(cfg.Templates.SeedDirectories) == 0 },
	}
	if pool != nil {
		readinessChecks.Database = observability.CheckerFunc(pool.Ping)
	}
	if redisClient != nil {
		readinessChecks.Redis = observability.CheckerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Authenticate:  transport.JWTAuthenticator(cfg.Identity, jwks),
		Metrics:       metrics,
		Ready:         observability.HandleReady(readinessChecks),
		Templates:     templateSvc,
		Engine:        engine,
		Permissions:   permissionSvc,
		Monitor:       monitor,
		Notifications: stores.notifications,
		Directory:     directory.NewService(stores.directory),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background deadline sweeps.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go monitor.Run(bgCtx, cfg.SLA.ScanInterval)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("templates", totalTemplates),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

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

	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// stores bundles one store per domain, all backed by the same driver.
type stores struct {
	templates     template.Store
	instances     instance.Store
	grants        permission.GrantStore
	notifications notification.Store
	directory     directory.Store
}

// buildStores creates the persistence layer. With driver "postgres" and a DSN
// in the environment it connects a pgx pool; otherwise everything runs
// in-memory, which is fine for development and single-replica trials.
func buildStores(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (stores, *pgxpool.Pool, error) {
	memory := stores{
		templates:     template.NewMemoryStore(),
		instances:     instance.NewMemoryStore(),
		grants:        permission.NewMemoryGrantStore(),
		notifications: notification.NewMemoryStore(),
		directory:     directory.NewMemoryStore(),
	}

	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		return memory, nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			logger.Warn("database DSN not configured, using in-memory stores",
				zap.String("dsn_env", cfg.DSNEnv))
			return memory, nil, nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return stores{}, nil, fmt.Errorf("parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return stores{}, nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return stores{}, nil, fmt.Errorf("ping: %w", err)
		}

		return stores{
			templates:     template.NewPgStore(pool),
			instances:     instance.NewPgStore(pool),
			grants:        permission.NewPgGrantStore(pool),
			notifications: notification.NewPgStore(pool),
			directory:     directory.NewPgStore(pool),
		}, pool, nil
	default:
		return stores{}, nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// buildLease picks the SLA sweep lease implementation. Without Redis each
// replica sweeps on its own, which double-sends warnings in multi-replica
// deployments but never corrupts state.
func buildLease(cfg config.RedisConfig, _ config.SLAConfig, logger *zap.Logger) (sla.Lease, *redis.Client) {
	addr := os.Getenv(cfg.AddrEnv)
	if addr == "" {
		logger.Info("redis address not configured, using in-process sweep lease")
		return sla.NewMemoryLease(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   cfg.DB,
	})
	return sla.NewRedisLease(client, "docflow:sla:sweep"), client
}
