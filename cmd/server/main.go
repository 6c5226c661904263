/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config from the environment
  2. Open the ledger store (SQLite or PostgreSQL)
  3. Open the pending store (memory, SQLite or MongoDB)
  4. Wire allocator, pipeline, confirmation machine and classifier
  5. Configure HTTP router and start the expired proposal sweeper
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port, overrides PORT
  -db      SQLite database path, overrides SQLITE_PATH
           Use ":memory:" for in-memory database
  -env     .env file to load (default: .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run against PostgreSQL with pending proposals in MongoDB
  LEDGER_DRIVER=postgres DATABASE_URL=postgres://... \
  PENDING_BACKEND=mongo MONGO_URI=mongodb://localhost:27017 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Expired proposal sweeper
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/classifier"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/confirm"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logctx"
	"github.com/warp/ledger-engine/pipeline"
	"github.com/warp/ledger-engine/savings"
	"github.com/warp/ledger-engine/store/mongo"
	"github.com/warp/ledger-engine/store/postgres"
	"github.com/warp/ledger-engine/store/sqlite"
)

const balanceCacheEntries = 10000

func main() {
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	envFile := flag.String("env", ".env", "env file to load")
	flag.Parse()

	if err := run(*port, *dbPath, *envFile); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(port int, dbPath, envFile string) error {
	ctx := context.Background()
	boot := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(ctx, boot, envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if port != 0 {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.SQLitePath = dbPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	ctx = logctx.WithLogger(ctx, logger)

	// Ledger store
	var (
		repo     ledger.TxRepository
		ping     func(context.Context) error
		sqliteDB *sqlite.Store
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		repo, ping = pg, pg.Ping
	default:
		sqliteDB, err = sqlite.New(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite %s: %w", cfg.SQLitePath, err)
		}
		defer sqliteDB.Close()
		repo, ping = sqliteDB, sqliteDB.Ping
	}
	l := ledger.NewLedger(repo, ledger.NewBalanceCache(cfg.BalanceCacheTTL, balanceCacheEntries))

	// Pending store
	var pending confirm.PendingStore
	switch cfg.PendingBackend {
	case config.PendingMemory:
		pending = confirm.NewMemoryStore()
	case config.PendingMongo:
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return fmt.Errorf("connecting to mongo: %w", err)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect failed", "error", err)
			}
		}()
		db := client.Database(cfg.MongoDatabase)
		if err := mongo.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("creating mongo indexes: %w", err)
		}
		pending = mongo.NewPendingStore(mongo.NewDatabaseProvider(db))
	default:
		if sqliteDB == nil {
			return errors.New("sqlite pending store requires the sqlite ledger driver")
		}
		pending = sqliteDB.Pending()
	}

	alloc := savings.NewAllocator(l)
	svc := pipeline.NewService(l, alloc)
	machine := confirm.NewMachine(pending, confirm.NewPipelineExecutor(svc), cfg.PendingTTL)

	var cls classifier.Classifier
	if cfg.ClassifierURL != "" {
		c, err := classifier.NewHTTPClient(&http.Client{Timeout: cfg.ClassifierTimeout}, cfg.ClassifierURL)
		if err != nil {
			return fmt.Errorf("configuring classifier: %w", err)
		}
		cls = c
	} else {
		logger.Warn("CLASSIFIER_URL not set, chat endpoint disabled")
	}

	handler := api.NewHandler(svc, alloc, machine, cls)
	handler.Ping = ping
	router := api.NewRouter(handler, logger, cfg.CORSOrigins)

	sweeper := api.NewPendingSweeper(machine, cfg.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "driver", cfg.Driver, "pending", cfg.PendingBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listening: %w", err)
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
