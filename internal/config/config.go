// Package config provides centralized configuration loaded from environment
// variables. Shared by every cmd/ingest subcommand; flags override per command.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/scoracle-lake/internal/model"
)

// --------------------------------------------------------------------------
// Backends
// --------------------------------------------------------------------------

const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"

	StorageFS = "fs"
	StorageS3 = "s3"
)

// --------------------------------------------------------------------------
// Config is populated from environment variables.
// --------------------------------------------------------------------------

type Config struct {
	// Upstream stats API
	APIBaseURL        string
	APIKey            string
	RequestsPerMinute int
	FetchTimeout      time.Duration

	// Retry policy
	FetchMaxAttempts int
	FetchBaseDelay   time.Duration
	FetchMaxDelay    time.Duration
	FetchJitter      time.Duration

	// Ledger
	LedgerBackend    string // sqlite, postgres
	LedgerSQLitePath string
	DatabaseURL      string
	DBPoolMinConns   int
	DBPoolMaxConns   int
	DBPoolMaxLife    time.Duration

	// Storage
	StorageBackend   string // fs, s3
	StorageRoot      string
	S3Bucket         string
	AWSRegion        string
	S3Endpoint       string
	S3ForcePathStyle bool
	WriteTimeout     time.Duration

	// Ingestion
	Workers           int
	Entities          []model.EntityType
	RefreshDimensions bool
	RunTimeout        time.Duration
	FailureThreshold  float64
	LeagueTimezone    *time.Location
	StableAfter       time.Duration

	// Daemon and status API
	ScheduleCron      string
	StatusAddr        string
	CORSAllowOrigins  []string
	MetricsEnabled    bool
	CacheEnabled      bool
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	tzName := envOr("LEAGUE_TIMEZONE", "America/New_York")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("LEAGUE_TIMEZONE %q: %w", tzName, err)
	}

	entities := []model.EntityType{
		model.EntityGame,
		model.EntityPlayerStat,
		model.EntityTeamStat,
		model.EntityStanding,
	}
	if envBool("INGEST_SHOT_CHARTS", false) {
		entities = append(entities, model.EntityShotChart)
	}

	cfg := &Config{
		APIBaseURL:        strings.TrimRight(envOr("NBA_API_BASE_URL", "https://api.balldontlie.io/v1"), "/"),
		APIKey:            envOr("NBA_API_KEY", envOr("BALLDONTLIE_API_KEY", "")),
		RequestsPerMinute: envInt("NBA_API_REQUESTS_PER_MINUTE", 600),
		FetchTimeout:      envDuration("FETCH_TIMEOUT_SECONDS", time.Second, 30*time.Second),

		FetchMaxAttempts: envInt("FETCH_MAX_ATTEMPTS", 5),
		FetchBaseDelay:   envDuration("FETCH_BASE_DELAY_MS", time.Millisecond, 500*time.Millisecond),
		FetchMaxDelay:    envDuration("FETCH_MAX_DELAY_MS", time.Millisecond, 30*time.Second),
		FetchJitter:      envDuration("FETCH_JITTER_MS", time.Millisecond, 250*time.Millisecond),

		LedgerBackend:    strings.ToLower(envOr("LEDGER_BACKEND", LedgerSQLite)),
		LedgerSQLitePath: envOr("LEDGER_SQLITE_PATH", "data/ledger.db"),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		DBPoolMinConns:   envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns:   envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:    envDuration("DB_POOL_MAX_LIFE_MINUTES", time.Minute, 30*time.Minute),

		StorageBackend:   strings.ToLower(envOr("STORAGE_BACKEND", StorageFS)),
		StorageRoot:      envOr("STORAGE_ROOT", "data/lake"),
		S3Bucket:         envOr("S3_BUCKET_NAME", ""),
		AWSRegion:        envOr("AWS_REGION", "us-east-1"),
		S3Endpoint:       envOr("S3_ENDPOINT", ""),
		S3ForcePathStyle: envBool("S3_FORCE_PATH_STYLE", false),
		WriteTimeout:     envDuration("WRITE_TIMEOUT_SECONDS", time.Second, 60*time.Second),

		Workers:           envInt("INGEST_WORKERS", 4),
		Entities:          entities,
		RefreshDimensions: envBool("INGEST_DIMENSIONS", false),
		RunTimeout:        envDuration("RUN_TIMEOUT_MINUTES", time.Minute, 2*time.Hour),
		FailureThreshold:  envFloat("FAILURE_THRESHOLD", 0.25),
		LeagueTimezone:    tz,
		StableAfter:       envDuration("STABLE_AFTER_HOURS", time.Hour, 6*time.Hour),

		ScheduleCron:      envOr("SCHEDULE_CRON", "0 6 * * *"),
		StatusAddr:        envOr("STATUS_ADDR", ":8080"),
		CORSAllowOrigins:  envList("CORS_ALLOW_ORIGINS", []string{"*"}),
		MetricsEnabled:    envBool("METRICS_ENABLED", true),
		CacheEnabled:      envBool("CACHE_ENABLED", true),
		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", false),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW_SECONDS", time.Second, time.Minute),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerSQLite:
	case LedgerPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when LEDGER_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.StorageBackend {
	case StorageFS:
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET_NAME must be set when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("INGEST_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.FetchMaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1, got %d", c.FetchMaxAttempts)
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return fmt.Errorf("FAILURE_THRESHOLD must be within [0, 1], got %v", c.FailureThreshold)
	}
	return nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads an integer count of unit.
func envDuration(key string, unit, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * unit
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
