// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Pending backends.
const (
	PendingMemory = "memory"
	PendingSQLite = "sqlite"
	PendingMongo  = "mongo"
)

const (
	defaultPort              = 8080
	defaultDriver            = DriverSQLite
	defaultSQLitePath        = "ledger.db"
	defaultPendingBackend    = PendingSQLite
	defaultMongoDatabase     = "ledger"
	defaultPendingTTL        = 15 * time.Minute
	defaultBalanceCacheTTL   = 5 * time.Second
	defaultClassifierTimeout = 20 * time.Second
	defaultSweepSchedule     = "@every 1m"
	defaultLogLevel          = slog.LevelInfo

	envPort              = "PORT"
	envDriver            = "LEDGER_DRIVER"
	envSQLitePath        = "SQLITE_PATH"
	envDatabaseURL       = "DATABASE_URL"
	envPendingBackend    = "PENDING_BACKEND"
	envMongoURI          = "MONGO_URI"
	envMongoDatabase     = "MONGO_DATABASE"
	envPendingTTL        = "PENDING_TTL"
	envBalanceCacheTTL   = "BALANCE_CACHE_TTL"
	envClassifierURL     = "CLASSIFIER_URL"
	envClassifierTimeout = "CLASSIFIER_TIMEOUT"
	envSweepSchedule     = "SWEEP_SCHEDULE"
	envLogLevel          = "LOG_LEVEL"
	envCORSOrigins       = "CORS_ORIGINS"
)

// Config holds the server configuration.
type Config struct {
	Port              int
	Driver            string
	SQLitePath        string
	DatabaseURL       string
	PendingBackend    string
	MongoURI          string
	MongoDatabase     string
	PendingTTL        time.Duration
	BalanceCacheTTL   time.Duration
	ClassifierURL     string
	ClassifierTimeout time.Duration
	SweepSchedule     string
	LogLevel          slog.Level
	CORSOrigins       []string
}

// Load reads .env (if present) and the environment. Unparseable optional
// values fall back to defaults with a warning; inconsistent required
// settings are errors.
func Load(ctx context.Context, logger *slog.Logger, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		logger.DebugContext(ctx, "No .env file loaded", "error", err)
	}

	cfg := &Config{
		Port:              envInt(ctx, logger, envPort, defaultPort),
		Driver:            envString(ctx, logger, envDriver, defaultDriver),
		SQLitePath:        envString(ctx, logger, envSQLitePath, defaultSQLitePath),
		DatabaseURL:       os.Getenv(envDatabaseURL),
		PendingBackend:    envString(ctx, logger, envPendingBackend, defaultPendingBackend),
		MongoURI:          os.Getenv(envMongoURI),
		MongoDatabase:     envString(ctx, logger, envMongoDatabase, defaultMongoDatabase),
		PendingTTL:        envDuration(ctx, logger, envPendingTTL, defaultPendingTTL),
		BalanceCacheTTL:   envDuration(ctx, logger, envBalanceCacheTTL, defaultBalanceCacheTTL),
		ClassifierURL:     os.Getenv(envClassifierURL),
		ClassifierTimeout: envDuration(ctx, logger, envClassifierTimeout, defaultClassifierTimeout),
		SweepSchedule:     envString(ctx, logger, envSweepSchedule, defaultSweepSchedule),
		LogLevel:          envLevel(ctx, logger, envLogLevel, defaultLogLevel),
		CORSOrigins:       envList(envCORSOrigins),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the chosen backends have what they need.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s=postgres requires %s", envDriver, envDatabaseURL)
		}
	default:
		return fmt.Errorf("unknown %s %q", envDriver, c.Driver)
	}
	switch c.PendingBackend {
	case PendingMemory:
	case PendingSQLite:
		if c.Driver != DriverSQLite {
			return fmt.Errorf("%s=sqlite requires %s=sqlite", envPendingBackend, envDriver)
		}
	case PendingMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%s=mongo requires %s", envPendingBackend, envMongoURI)
		}
	default:
		return fmt.Errorf("unknown %s %q", envPendingBackend, c.PendingBackend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %s %d", envPort, c.Port)
	}
	return nil
}

func envString(ctx context.Context, logger *slog.Logger, key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		logger.DebugContext(ctx, "Using default", "key", key, "value", def)
		return def
	}
	logger.DebugContext(ctx, "Using value from environment", "key", key, "value", v)
	return v
}

func envInt(ctx context.Context, logger *slog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.WarnContext(ctx, "Invalid integer, using default", "key", key, "value", v, "default", def, "error", err)
		return def
	}
	return n
}

func envDuration(ctx context.Context, logger *slog.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.WarnContext(ctx, "Invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envLevel(ctx context.Context, logger *slog.Logger, key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		logger.WarnContext(ctx, "Invalid log level, using default", "key", key, "value", v, "default", def)
		return def
	}
	return l
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
