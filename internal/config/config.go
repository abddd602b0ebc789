// Package config defines the top-level configuration for lobsim and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LOBSIM_* environment variables.
type Config struct {
	Data     DataConfig     `toml:"data"`
	Backtest BacktestConfig `toml:"backtest"`
	Risk     RiskConfig     `toml:"risk"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DataConfig locates the bar series. Source is a local .csv/.parquet path or
// s3://bucket/key.
type DataConfig struct {
	Source     string `toml:"source"`
	SMAWindows []int  `toml:"sma_windows"`
}

// BacktestConfig holds the defaults for a run.
type BacktestConfig struct {
	StartIndex   int            `toml:"start_index"`
	EndIndex     int            `toml:"end_index"` // negative means the whole series
	StartingCash float64        `toml:"starting_cash"`
	FillMode     string         `toml:"fill_mode"`
	AtomicSteps  bool           `toml:"atomic_steps"`
	Strategy     string         `toml:"strategy"`
	Params       map[string]any `toml:"params"`
	CacheTTL     duration       `toml:"cache_ttl"`
	LockTTL      duration       `toml:"lock_ttl"`
}

// RiskConfig holds position-sizing caps, in units of the asset.
type RiskConfig struct {
	MaxPosition    float64 `toml:"max_position"`
	MaxSingleTrade float64 `toml:"max_single_trade"`
}

// StoreConfig selects where finished runs are persisted.
type StoreConfig struct {
	Driver     string `toml:"driver"` // none, sqlite or postgres
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	BookTTL      duration `toml:"book_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls copying finished runs to object storage.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Prefix  string `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// LogConfig controls the optional rotating log file. Output always goes to
// stdout; File adds a second destination.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Data: DataConfig{
			Source:     "data/raw/aapl_1y.csv",
			SMAWindows: []int{5, 20},
		},
		Backtest: BacktestConfig{
			StartIndex:   0,
			EndIndex:     -1,
			StartingCash: 100_000,
			FillMode:     "always_fill",
			Strategy:     "sma_crossover",
			Params:       map[string]any{},
			CacheTTL:     duration{time.Hour},
			LockTTL:      duration{5 * time.Minute},
		},
		Risk: RiskConfig{
			MaxPosition:    1000,
			MaxSingleTrade: 100,
		},
		Store: StoreConfig{
			Driver:     StoreNone,
			SQLitePath: "data/lobsim.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
			BookTTL:      duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "lobsim-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Prefix: "archive",
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:8501"},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			DiscordUsername: "lobsim",
			Events:          []string{"run_completed", "run_failed"},
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mode:     ModeServer,
		LogLevel: "info",
	}
}

const (
	ModeBacktest = "backtest"
	ModeServer   = "server"

	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeBacktest: true,
	ModeServer:   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStoreDrivers = map[string]bool{
	StoreNone:     true,
	StoreSQLite:   true,
	StorePostgres: true,
}

var validFillModes = map[string]bool{
	"always_fill": true,
	"contention":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: backtest, server)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Data
	if strings.TrimSpace(c.Data.Source) == "" {
		errs = append(errs, "data: source must not be empty")
	}
	if strings.HasPrefix(c.Data.Source, "s3://") && !c.S3.Enabled {
		errs = append(errs, "data: s3:// source requires s3.enabled")
	}
	for _, w := range c.Data.SMAWindows {
		if w <= 0 {
			errs = append(errs, fmt.Sprintf("data: sma window %d must be > 0", w))
		}
	}

	// Backtest
	if c.Backtest.StartIndex < 0 {
		errs = append(errs, "backtest: start_index must be >= 0")
	}
	if c.Backtest.EndIndex >= 0 && c.Backtest.EndIndex < c.Backtest.StartIndex {
		errs = append(errs, "backtest: end_index must not be before start_index")
	}
	if c.Backtest.StartingCash <= 0 {
		errs = append(errs, "backtest: starting_cash must be > 0")
	}
	if !validFillModes[c.Backtest.FillMode] {
		errs = append(errs, fmt.Sprintf("backtest: unknown fill_mode %q (valid: always_fill, contention)", c.Backtest.FillMode))
	}
	if c.Backtest.Strategy == "" {
		errs = append(errs, "backtest: strategy must not be empty")
	}

	// Risk
	if c.Risk.MaxPosition <= 0 {
		errs = append(errs, "risk: max_position must be > 0")
	}
	if c.Risk.MaxSingleTrade <= 0 {
		errs = append(errs, "risk: max_single_trade must be > 0")
	}

	// Store
	if !validStoreDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: none, sqlite, postgres)", c.Store.Driver))
	}
	if c.Store.Driver == StoreSQLite && c.Store.SQLitePath == "" {
		errs = append(errs, "store: sqlite_path must not be empty for the sqlite driver")
	}

	// Postgres
	if c.Store.Driver == StorePostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		errs = append(errs, "archive: requires s3.enabled")
	}

	// Server
	if strings.ToLower(c.Mode) == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Redis.Enabled && c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
