package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, -1, cfg.Backtest.EndIndex)
	assert.Equal(t, 100_000.0, cfg.Backtest.StartingCash)
	assert.Equal(t, []int{5, 20}, cfg.Data.SMAWindows)
}

func TestLoadTOMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lobsim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "backtest"

[data]
source = "bars.parquet"

[backtest]
strategy = "mean_reversion"
fill_mode = "contention"
cache_ttl = "10m"

[backtest.params]
lookback = 30
std_dev_threshold = 1.5

[store]
driver = "sqlite"
`), 0o644))

	t.Chdir(dir)
	t.Setenv("LOBSIM_RISK_MAX_POSITION", "500")
	t.Setenv("LOBSIM_DATA_SMA_WINDOWS", "3, 9")
	t.Setenv("LOBSIM_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "backtest", cfg.Mode)
	assert.Equal(t, "bars.parquet", cfg.Data.Source)
	assert.Equal(t, "mean_reversion", cfg.Backtest.Strategy)
	assert.Equal(t, "contention", cfg.Backtest.FillMode)
	assert.Equal(t, 10*time.Minute, cfg.Backtest.CacheTTL.Duration)
	assert.Equal(t, int64(30), cfg.Backtest.Params["lookback"])
	assert.Equal(t, 1.5, cfg.Backtest.Params["std_dev_threshold"])
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 500.0, cfg.Risk.MaxPosition)
	assert.Equal(t, 100.0, cfg.Risk.MaxSingleTrade)
	assert.Equal(t, []int{3, 9}, cfg.Data.SMAWindows)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Backtest.FillMode = "sometimes"
	cfg.Backtest.StartingCash = 0
	cfg.Risk.MaxSingleTrade = -1
	cfg.Store.Driver = "mongo"
	cfg.Archive.Enabled = true
	cfg.Data.Source = "s3://bucket/bars.csv"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		`unknown fill_mode "sometimes"`,
		"starting_cash must be > 0",
		"max_single_trade must be > 0",
		`unknown driver "mongo"`,
		"archive: requires s3.enabled",
		"s3:// source requires s3.enabled",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "key"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Backtest.Params["lookback"] = 10

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "", out.Redis.Password)

	out.Backtest.Params["lookback"] = 99
	out.Server.CORSOrigins[0] = "mutated"
	assert.Equal(t, 10, cfg.Backtest.Params["lookback"])
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "pw", cfg.Postgres.Password)
}
