package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/vault-engine/internal/auth"
	"github.com/atmx/vault-engine/internal/config"
	"github.com/atmx/vault-engine/internal/oracle"
	"github.com/atmx/vault-engine/internal/store"
	"github.com/atmx/vault-engine/internal/trade"
	"github.com/atmx/vault-engine/internal/vault"
)

// priceFeed is read by the engine and written by the price endpoint.
type priceFeed interface {
	vault.PriceFeed
	trade.PriceSink
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("vault-engine failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("vault-engine stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	params, assets, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Oracle ---
	var feed priceFeed
	if rdb != nil {
		feed = oracle.NewRedisFeed(rdb, cfg.OracleSampleSpace, cfg.OracleMaxAge)
		slog.Info("using Redis price feed", "sample_space", cfg.OracleSampleSpace)
	} else {
		feed = oracle.NewSampleFeed(cfg.OracleSampleSpace, cfg.OracleMaxAge)
	}

	// --- Engine ---
	registry := auth.NewRegistry(cfg.Governor, cfg.PriceKeepers...)
	if cfg.Governor == "" {
		slog.Warn("GOVERNOR not set, governance endpoints are disabled")
	}
	if cfg.Governor == "" && len(cfg.PriceKeepers) == 0 {
		slog.Warn("no GOVERNOR or PRICE_KEEPERS, prices can only come from a shared Redis feed")
	}
	engine, err := vault.New(feed, registry, st, params, vault.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := engine.ConfigureAssets(assets...); err != nil {
		return fmt.Errorf("configure assets: %w", err)
	}
	ledger, err := trade.Recover(ctx, st, engine)
	if err != nil {
		return err
	}

	// --- HTTP ---
	wsHub := trade.NewWSHub()
	svc := trade.NewService(engine, ledger, st, registry, feed, wsHub)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      svc.Routes(cfg.APIKey),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wsHub.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("vault-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down vault-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
