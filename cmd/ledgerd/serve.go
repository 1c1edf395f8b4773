package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/icrc_ledger/internal/archive"
	"github.com/congo-pay/icrc_ledger/internal/auth"
	"github.com/congo-pay/icrc_ledger/internal/config"
	"github.com/congo-pay/icrc_ledger/internal/infra"
	"github.com/congo-pay/icrc_ledger/internal/ledger"
	"github.com/congo-pay/icrc_ledger/internal/logging"
	"github.com/congo-pay/icrc_ledger/internal/metrics"
	"github.com/congo-pay/icrc_ledger/internal/notification"
	"github.com/congo-pay/icrc_ledger/internal/routes"
	"github.com/congo-pay/icrc_ledger/internal/server"
)

const devJWTSecret = "insecure-development-secret"

var ServeCommand = &cli.Command{
	Name:  "serve",
	Usage: "runs the ledger HTTP API",
	Action: func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(cfg.LogLevel, slog.String("app", cfg.AppName), slog.String("env", cfg.AppEnv))

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	token, err := config.LoadToken(cfg.TokenFile)
	if err != nil {
		return err
	}

	deps, cleanup, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := infra.OpenLedgerStorage(ctx, cfg, deps.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("close storage", "error", err)
		}
	}()

	engine, err := ledger.Open(ctx, token, st.Storage, ledgerOptions(cfg), logger)
	if err != nil {
		return err
	}

	var notifier notification.Notifier = notification.NewLoggerNotifier(logger)
	if deps.Cache != nil {
		notifier = notification.NewRedisNotifier(deps.Cache, cfg.NotifyChannel)
	}
	collector := metrics.NewCollector("")
	svc := ledger.NewService(engine,
		ledger.WithLogger(logger),
		ledger.WithMetrics(collector),
		ledger.WithNotifier(notifier),
	)

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}
	authSvc, err := auth.NewService(secret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	deps.Cfg = cfg
	deps.Logger = logger
	deps.Ledger = svc
	deps.Verifier = authSvc
	deps.Metrics = collector
	srv, err := server.New(deps)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	// The executor outlives the HTTP server so draining requests complete.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(runCtx)
	})
	g.Go(func() error {
		logger.Info("listening", "address", cfg.Address(), "storage", st.Backend)
		return srv.Listen()
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopRun()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server exited cleanly")
	return nil
}

// connect opens the optional Postgres and Redis dependencies.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (routes.Deps, func(), error) {
	var (
		deps  routes.Deps
		db    *pgxpool.Pool
		cache *redis.Client
		err   error
	)
	if cfg.DatabaseURL != "" {
		if db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName); err != nil {
			return deps, nil, err
		}
	}
	if cfg.RedisURL != "" {
		if cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName); err != nil {
			if db != nil {
				db.Close()
			}
			return deps, nil, err
		}
	}

	deps.DB = db
	deps.Cache = cache
	cleanup := func() {
		if cache != nil {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}
		if db != nil {
			db.Close()
		}
	}
	return deps, cleanup, nil
}

func ledgerOptions(cfg config.Config) ledger.Options {
	return ledger.Options{
		LiveCapacity: cfg.LiveCapacity,
		Archive: archive.Config{
			TriggerThreshold:   cfg.ArchiveTrigger,
			NumBlocksToArchive: cfg.ArchiveBlocks,
		},
	}
}
