package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/aarelay/internal/accounts"
	"github.com/pscheid92/aarelay/internal/adapter/bundler"
	"github.com/pscheid92/aarelay/internal/adapter/chain"
	"github.com/pscheid92/aarelay/internal/adapter/httpserver"
	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/adapter/postgres"
	"github.com/pscheid92/aarelay/internal/adapter/redis"
	"github.com/pscheid92/aarelay/internal/app"
	"github.com/pscheid92/aarelay/internal/domain"
	"github.com/pscheid92/aarelay/internal/platform/config"
	"github.com/pscheid92/aarelay/internal/platform/logging"
	"github.com/pscheid92/aarelay/internal/platform/version"
)

const (
	// Counterfactual addresses never change for a fixed factory and salt.
	sharedAddressTTL = 30 * 24 * time.Hour
	evictionInterval = time.Minute
	connectTimeout   = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

type upstreams struct {
	chain   *chain.Client
	bundler *bundler.Client
	redis   *goredis.Client
	pool    *pgxpool.Pool
}

func (u *upstreams) Close() {
	if u.pool != nil {
		u.pool.Close()
	}
	if u.redis != nil {
		_ = u.redis.Close()
	}
	if u.bundler != nil {
		u.bundler.Close()
	}
	if u.chain != nil {
		u.chain.Close()
	}
}

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupUpstreams(cfg *config.Config, m *metrics.UpstreamMetrics) *upstreams {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	u := &upstreams{}

	chainClient, err := chain.Dial(ctx, cfg.RPCURL, cfg.AccountFactory(), cfg.EntryPoint(), m)
	if err != nil {
		fatal(u, "Failed to connect to chain RPC", err)
	}
	u.chain = chainClient

	bundlerClient, err := bundler.Dial(ctx, cfg.BundlerURL, cfg.PaymasterURL, m)
	if err != nil {
		fatal(u, "Failed to connect to bundler", err)
	}
	u.bundler = bundlerClient

	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL, m)
		if err != nil {
			fatal(u, "Failed to connect to Redis", err)
		}
		u.redis = rdb
	} else {
		slog.Info("REDIS_URL not set, shared address cache disabled")
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
		if err != nil {
			fatal(u, "Failed to connect to database", err)
		}
		u.pool = pool

		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			fatal(u, "Failed to run migrations", err)
		}
	} else {
		slog.Info("DATABASE_URL not set, user operation journal disabled")
	}

	return u
}

func fatal(u *upstreams, msg string, err error) {
	slog.Error(msg, "error", err)
	u.Close()
	os.Exit(1)
}

func healthChecks(cfg *config.Config, u *upstreams) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "chain", Check: u.chain.Ping},
		{Name: "bundler", Check: func(ctx context.Context) error {
			return u.bundler.Ping(ctx, cfg.EntryPoint())
		}},
	}
	if u.redis != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return u.redis.Ping(ctx).Err()
		}})
	}
	if u.pool != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: u.pool.Ping})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	salt, err := cfg.Salt()
	if err != nil {
		slog.Error("Invalid account salt", "error", err)
		os.Exit(1)
	}

	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(registry)
	upstreamMetrics := metrics.NewUpstreamMetrics(registry)
	cacheMetrics := metrics.NewCacheMetrics(registry)
	relayMetrics := metrics.NewRelayMetrics(registry)

	u := setupUpstreams(cfg, upstreamMetrics)
	defer u.Close()

	// Pass nil interfaces explicitly to avoid typed-nil values
	var shared domain.AddressCache
	if u.redis != nil {
		shared = redis.NewAddressCache(u.redis, sharedAddressTTL)
	}
	var journal domain.Journal
	if u.pool != nil {
		journal = postgres.NewJournalRepo(u.pool)
	}

	resolver := accounts.NewResolver(u.chain, shared, accounts.Config{
		Factory: cfg.AccountFactory(),
		Salt:    salt,
		TTL:     cfg.AddressCacheTTL,
	}, clock, cacheMetrics)
	stopEviction := resolver.StartEvictionTimer(evictionInterval)
	defer stopEviction()

	appSvc := app.NewService(u.chain, resolver, u.bundler, u.bundler, journal, app.Config{
		EntryPoint:          cfg.EntryPoint(),
		Factory:             cfg.AccountFactory(),
		Salt:                salt,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
		ReceiptTimeout:      cfg.ReceiptTimeout,
	}, clock, relayMetrics)

	srv := httpserver.NewServer(cfg, appSvc, registry, httpMetrics, healthChecks(cfg, u), clock)

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
