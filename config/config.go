/*
config.go - Process configuration

PURPOSE:
  Reads deployment settings from the environment. A .env file in the
  working directory is loaded first when present; variables already set in
  the environment win over it.

STORAGE SELECTION:
  DATABASE_URL set   -> PostgreSQL
  otherwise          -> SQLite at SQLITE_PATH

  REDIS_ADDR set     -> Redis locks and Redis balance cache
  otherwise          -> in-process locks and in-memory balance cache

SEE ALSO:
  - logger.go: Logger construction
  - cmd/server/main.go: Wires these settings
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/stockbook/inventory"
)

type Config struct {
	Port            string
	SQLitePath      string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	BalanceCacheTTL time.Duration
	LockTTL         time.Duration
	AllowedOrigins  []string
	Locations       []inventory.Location
	LogLevel        string
	LogFormat       string
}

// Load reads .env (if any) and the environment. Malformed numbers fall back
// to their defaults.
func Load() Config {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		redisDB = 0
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		SQLitePath:      getEnv("SQLITE_PATH", "stockbook.db"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:       strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		BalanceCacheTTL: seconds("BALANCE_CACHE_TTL_SECONDS", 60),
		LockTTL:         seconds("LOCK_TTL_SECONDS", 10),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		Locations:       locations(os.Getenv("LOCATIONS")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) UsePostgres() bool { return c.DatabaseURL != "" }

func (c Config) UseRedis() bool { return c.RedisAddr != "" }

// =============================================================================
// HELPERS
// =============================================================================

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func seconds(key string, fallback int) time.Duration {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// locations parses LOCATIONS. Empty means the tracker's defaults.
func locations(s string) []inventory.Location {
	names := splitList(s)
	if len(names) == 0 {
		return nil
	}
	out := make([]inventory.Location, len(names))
	for i, n := range names {
		out[i] = inventory.Location(n)
	}
	return out
}
