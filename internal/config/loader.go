package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LOBSIM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LOBSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Data ──
	setStr(&cfg.Data.Source, "LOBSIM_DATA_SOURCE")
	setIntSlice(&cfg.Data.SMAWindows, "LOBSIM_DATA_SMA_WINDOWS")

	// ── Backtest ──
	setInt(&cfg.Backtest.StartIndex, "LOBSIM_BACKTEST_START_INDEX")
	setInt(&cfg.Backtest.EndIndex, "LOBSIM_BACKTEST_END_INDEX")
	setFloat64(&cfg.Backtest.StartingCash, "LOBSIM_BACKTEST_STARTING_CASH")
	setStr(&cfg.Backtest.FillMode, "LOBSIM_BACKTEST_FILL_MODE")
	setBool(&cfg.Backtest.AtomicSteps, "LOBSIM_BACKTEST_ATOMIC_STEPS")
	setStr(&cfg.Backtest.Strategy, "LOBSIM_BACKTEST_STRATEGY")
	setDuration(&cfg.Backtest.CacheTTL, "LOBSIM_BACKTEST_CACHE_TTL")
	setDuration(&cfg.Backtest.LockTTL, "LOBSIM_BACKTEST_LOCK_TTL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPosition, "LOBSIM_RISK_MAX_POSITION")
	setFloat64(&cfg.Risk.MaxSingleTrade, "LOBSIM_RISK_MAX_SINGLE_TRADE")

	// ── Store ──
	setStr(&cfg.Store.Driver, "LOBSIM_STORE_DRIVER")
	setStr(&cfg.Store.SQLitePath, "LOBSIM_STORE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LOBSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LOBSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LOBSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LOBSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LOBSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LOBSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LOBSIM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LOBSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LOBSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LOBSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LOBSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LOBSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LOBSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LOBSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LOBSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LOBSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LOBSIM_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "LOBSIM_REDIS_STREAM_MAX_LEN")
	setDuration(&cfg.Redis.BookTTL, "LOBSIM_REDIS_BOOK_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LOBSIM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LOBSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LOBSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "LOBSIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LOBSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LOBSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LOBSIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LOBSIM_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LOBSIM_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Prefix, "LOBSIM_ARCHIVE_PREFIX")

	// ── Server ──
	setInt(&cfg.Server.Port, "LOBSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LOBSIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LOBSIM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LOBSIM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "LOBSIM_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "LOBSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DiscordUsername, "LOBSIM_NOTIFY_DISCORD_USERNAME")
	setStr(&cfg.Notify.TelegramToken, "LOBSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LOBSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "LOBSIM_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "LOBSIM_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "LOBSIM_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "LOBSIM_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "LOBSIM_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "LOBSIM_LOG_COMPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LOBSIM_MODE")
	setStr(&cfg.LogLevel, "LOBSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setIntSlice(dst *[]int, key string) {
	var parts []string
	setStringSlice(&parts, key)
	if len(parts) == 0 {
		return
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return
		}
		out = append(out, n)
	}
	*dst = out
}
