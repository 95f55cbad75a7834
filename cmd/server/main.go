/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the stockbook server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the store (PostgreSQL if DATABASE_URL is set, else SQLite)
  3. Pick locks and balance cache (Redis if REDIS_ADDR is set, else in-process)
  4. Build the tracker, API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PORT or 8080)
  -db      SQLite database path (default: SQLITE_PATH or stockbook.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/stock.db"

  # Run against PostgreSQL and Redis
  DATABASE_URL=postgres://localhost/stockbook REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - tracker/tracker.go: Command handlers
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/api"
	"github.com/warp/stockbook/cache"
	"github.com/warp/stockbook/config"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/lock"
	"github.com/warp/stockbook/store/postgres"
	"github.com/warp/stockbook/store/sqlite"
	"github.com/warp/stockbook/tracker"
)

// lockRetries bounds how often a Redis lock is retried before the request
// fails with a conflict.
const lockRetries = 20

func main() {
	cfg := config.Load()

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.SQLitePath = *dbPath

	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Initialize store
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer closeStore()

	opts := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithCache(cache.NewMemory(), cfg.BalanceCacheTTL),
	}
	if len(cfg.Locations) > 0 {
		opts = append(opts, tracker.WithLocations(cfg.Locations...))
	}

	if cfg.UseRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("redis unavailable and REDIS_ADDR is set")
		}
		opts = append(opts,
			tracker.WithLocker(lock.NewRedis(rdb, cfg.LockTTL, lockRetries)),
			tracker.WithCache(cache.NewRedis(rdb), cfg.BalanceCacheTTL),
		)
		logger.WithField("addr", cfg.RedisAddr).Info("locks and balance cache: redis")
	} else {
		logger.Info("locks and balance cache: in-process")
	}

	t := tracker.New(store, opts...)

	// Create router
	handler := api.NewHandler(t, logger)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      server.Addr,
			"locations": t.Locations(),
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server stopped")
}

// openStore connects to PostgreSQL when DATABASE_URL is set and refuses to
// fall back to SQLite if that fails.
func openStore(cfg config.Config, logger logrus.FieldLogger) (inventory.TxStore, func(), error) {
	if cfg.UsePostgres() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store: postgres")
		return pg, closeWith(logger, pg.Close), nil
	}

	lite, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("path", cfg.SQLitePath).Info("store: sqlite")
	return lite, closeWith(logger, lite.Close), nil
}

func closeWith(logger logrus.FieldLogger, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			config.LogError(logger, "main", "openStore", "close store", nil, err)
		}
	}
}
