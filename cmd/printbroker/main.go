package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"printbroker/internal/config"
	"printbroker/internal/http/server"
	"printbroker/internal/identity"
	"printbroker/internal/infra/blob"
	"printbroker/internal/infra/cache"
	"printbroker/internal/infra/db"
	"printbroker/internal/infra/logging"
	"printbroker/internal/infra/ratelimit"
	"printbroker/internal/ledger"
	"printbroker/internal/shops"
)

func main() {
	cfg := config.Load()
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		fmt.Fprintf(os.Stderr, "create log dir: %v\n", err)
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	if err := run(cfg); err != nil {
		logging.Error("Startup failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := db.NewDB()
	defer mgr.Close()
	store, err := db.Open(ctx, mgr, cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	accounts := db.NewAccountRepository(store)

	if path := os.Getenv("SEED_PATH"); path != "" {
		if err := identity.SeedFromFile(ctx, accounts, path); err != nil {
			logging.Error("Failed to apply seed file", "path", path, "error", err)
		}
	}

	tokens := identity.NewCache()
	reloader := identity.NewReloader(accounts, tokens, cfg.Auth.TokenReloadInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		// requests get 503 until a reload succeeds
		logging.Error("Failed to load access tokens", "error", err)
	}
	reloader.Start(ctx)

	var opts []ledger.Option
	if cfg.Redis.Addr != "" && cfg.Redis.FeedCacheEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.CacheDB,
		})
		defer rdb.Close()
		opts = append(opts, ledger.WithFeedCache(cache.NewFeed(rdb, cfg.Redis.FeedCacheTTL)))
		logging.Info("Feed cache enabled", "addr", cfg.Redis.Addr, "db", cfg.Redis.CacheDB, "ttl", cfg.Redis.FeedCacheTTL.String())
	}

	blobs, err := blob.New(cfg.Blob.Dir, cfg.Blob.AllowedExtensions, int64(cfg.Blob.MaxFileMB)<<20)
	if err != nil {
		return err
	}

	app := server.New(server.Deps{
		Config:       cfg,
		Auth:         identity.NewAuthenticator(tokens, accounts),
		Tokens:       tokens,
		LimiterStore: ratelimit.NewStore(cfg.Redis),
		Ledger:       ledger.New(db.NewRequestRepository(store), accounts, accounts, opts...),
		Shops:        shops.NewDirectory(accounts),
		Blobs:        blobs,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
	return nil
}

// ensureLogDir creates the directory of the log file if needed.
func ensureLogDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// startServer starts the Fiber app and blocks until a shutdown signal arrives.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		logging.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
