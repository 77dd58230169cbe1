package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Kalshi.ApiKey = "key-id"
	cfg.Kalshi.RsaPrivateKeyPath = "kalshi.pem"
	return cfg
}

func TestDefaultsAreDryRun(t *testing.T) {
	cfg := Defaults()
	assert.True(t, cfg.Mode.DryRun)
	assert.False(t, cfg.Mode.KalshiOnly)
	assert.True(t, decimal.RequireFromString("0.005").Equal(cfg.Arbitrage.Threshold()))
	assert.True(t, decimal.RequireFromString("0.07").Equal(cfg.Arbitrage.FeeRate()))
	assert.Equal(t, 3*time.Second, cfg.Arbitrage.MaxQuoteAge.Duration)
	assert.Equal(t, 60*time.Second, cfg.Heartbeat.Interval.Duration)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.Execution.Slippage()))
}

func TestValidateAcceptsDryRunWithKalshiCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "loud"
	cfg.Arbitrage.ProfitThreshold = 1.5
	cfg.Risk.MaxConsecutiveErrors = 0
	cfg.Feed.QueueSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, `log: unknown level "loud"`)
	assert.Contains(t, msg, "profit_threshold")
	assert.Contains(t, msg, "max_consecutive_errors")
	assert.Contains(t, msg, "queue_size")
}

func TestValidateLiveNeedsPolymarketCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Mode.DryRun = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	// L2 credentials may be left empty and derived at startup.
	cfg.Polymarket.PrivateKey = "0xabc"
	require.NoError(t, cfg.Validate())

	cfg.Polymarket.ApiKey = "k"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")

	cfg.Polymarket.ApiSecret = "s"
	cfg.Polymarket.ApiPassphrase = "p"
	require.NoError(t, cfg.Validate())

	// Kalshi-only mode never touches Polymarket.
	cfg = validConfig()
	cfg.Mode.DryRun = false
	cfg.Mode.KalshiOnly = true
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresSeriesForEveryLeague(t *testing.T) {
	cfg := validConfig()
	cfg.Discovery.Leagues = []string{"nba", "epl"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no kalshi_series for league "epl"`)
	assert.Contains(t, err.Error(), `no polymarket_tags for league "epl"`)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[mode]
dry_run = false

[arbitrage]
profit_threshold = 0.01
max_quote_age = "1500ms"

[discovery]
leagues = ["nba"]

[kalshi]
api_key = "from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Mode.DryRun)
	assert.Equal(t, 0.01, cfg.Arbitrage.ProfitThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.Arbitrage.MaxQuoteAge.Duration)
	assert.Equal(t, []string{"nba"}, cfg.Discovery.Leagues)
	assert.Equal(t, "from-file", cfg.Kalshi.ApiKey)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.07, cfg.Arbitrage.KalshiFeeRate)
	assert.Equal(t, "KXNBAGAME", cfg.Discovery.KalshiSeries["nba"])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[kalshi]\napi_key = \"from-file\"\n"), 0o600))

	t.Setenv("ARBENGINE_KALSHI_API_KEY", "from-env")
	t.Setenv("ARBENGINE_DRY_RUN", "false")
	t.Setenv("ARBENGINE_RISK_COOLDOWN", "90s")
	t.Setenv("ARBENGINE_DISCOVERY_LEAGUES", " nba, nhl ,")
	t.Setenv("ARBENGINE_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Kalshi.ApiKey)
	assert.False(t, cfg.Mode.DryRun)
	assert.Equal(t, 90*time.Second, cfg.Risk.Cooldown.Duration)
	assert.Equal(t, []string{"nba", "nhl"}, cfg.Discovery.Leagues)
	assert.Equal(t, 8080, cfg.Server.Port, "unparsable values are ignored")
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.True(t, cfg.Mode.DryRun)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[mode\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedMasksSecretsWithoutAliasing(t *testing.T) {
	cfg := validConfig()
	cfg.Polymarket.PrivateKey = "0xdeadbeef"
	cfg.Postgres.DSN = "postgres://u:p@db/arb"
	cfg.Notify.TelegramToken = "tg"

	out := cfg.Redacted()
	assert.Equal(t, redacted, out.Kalshi.ApiKey)
	assert.Equal(t, redacted, out.Polymarket.PrivateKey)
	assert.Equal(t, redacted, out.Postgres.DSN)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")
	assert.Equal(t, "0xdeadbeef", cfg.Polymarket.PrivateKey)

	out.Discovery.KalshiSeries["nba"] = "changed"
	out.Discovery.Leagues[0] = "changed"
	assert.Equal(t, "KXNBAGAME", cfg.Discovery.KalshiSeries["nba"])
	assert.Equal(t, "nba", cfg.Discovery.Leagues[0])
}
