package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBENGINE_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Mode ──
	setBool(&cfg.Mode.DryRun, "ARBENGINE_DRY_RUN")
	setBool(&cfg.Mode.KalshiOnly, "ARBENGINE_KALSHI_ONLY")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.ProfitThreshold, "ARBENGINE_ARBITRAGE_PROFIT_THRESHOLD")
	setDuration(&cfg.Arbitrage.MaxQuoteAge, "ARBENGINE_ARBITRAGE_MAX_QUOTE_AGE")
	setBool(&cfg.Arbitrage.IncludeFees, "ARBENGINE_ARBITRAGE_INCLUDE_FEES")
	setFloat64(&cfg.Arbitrage.KalshiFeeRate, "ARBENGINE_ARBITRAGE_KALSHI_FEE_RATE")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionPerMarket, "ARBENGINE_RISK_MAX_POSITION_PER_MARKET")
	setFloat64(&cfg.Risk.MaxTotalPosition, "ARBENGINE_RISK_MAX_TOTAL_POSITION")
	setFloat64(&cfg.Risk.MaxDailyLoss, "ARBENGINE_RISK_MAX_DAILY_LOSS")
	setInt(&cfg.Risk.MaxConsecutiveErrors, "ARBENGINE_RISK_MAX_CONSECUTIVE_ERRORS")
	setDuration(&cfg.Risk.Cooldown, "ARBENGINE_RISK_COOLDOWN")
	setDuration(&cfg.Risk.SnapshotInterval, "ARBENGINE_RISK_SNAPSHOT_INTERVAL")

	// ── Execution ──
	setDuration(&cfg.Execution.Timeout, "ARBENGINE_EXECUTION_TIMEOUT")
	setDuration(&cfg.Execution.PollInterval, "ARBENGINE_EXECUTION_POLL_INTERVAL")
	setInt(&cfg.Execution.MaxSlippageCents, "ARBENGINE_EXECUTION_MAX_SLIPPAGE_CENTS")
	setInt(&cfg.Execution.OrderRateLimit, "ARBENGINE_EXECUTION_ORDER_RATE_LIMIT")
	setDuration(&cfg.Execution.OrderRateWindow, "ARBENGINE_EXECUTION_ORDER_RATE_WINDOW")
	setDuration(&cfg.Execution.LockTTL, "ARBENGINE_EXECUTION_LOCK_TTL")

	// ── Discovery ──
	setStringSlice(&cfg.Discovery.Leagues, "ARBENGINE_DISCOVERY_LEAGUES")
	setStr(&cfg.Discovery.TeamMappingPath, "ARBENGINE_DISCOVERY_TEAM_MAPPING_PATH")
	setBool(&cfg.Discovery.Force, "ARBENGINE_FORCE_DISCOVERY")
	setDuration(&cfg.Discovery.CacheTTL, "ARBENGINE_DISCOVERY_CACHE_TTL")
	setDuration(&cfg.Discovery.RefreshInterval, "ARBENGINE_DISCOVERY_REFRESH_INTERVAL")

	// ── Feed / heartbeat ──
	setDuration(&cfg.Feed.ReconnectDelay, "ARBENGINE_FEED_RECONNECT_DELAY")
	setInt(&cfg.Feed.QueueSize, "ARBENGINE_FEED_QUEUE_SIZE")
	setDuration(&cfg.Feed.QuoteRetention, "ARBENGINE_FEED_QUOTE_RETENTION")
	setDuration(&cfg.Heartbeat.Interval, "ARBENGINE_HEARTBEAT_INTERVAL")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "ARBENGINE_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "ARBENGINE_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "ARBENGINE_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "ARBENGINE_KALSHI_WS_URL")
	setFloat64(&cfg.Kalshi.RequestsPerSecond, "ARBENGINE_KALSHI_REQUESTS_PER_SECOND")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "ARBENGINE_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "ARBENGINE_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "ARBENGINE_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "ARBENGINE_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.Exchange, "ARBENGINE_POLYMARKET_EXCHANGE")
	setStr(&cfg.Polymarket.NegRiskExchange, "ARBENGINE_POLYMARKET_NEG_RISK_EXCHANGE")
	setStr(&cfg.Polymarket.PrivateKey, "ARBENGINE_POLYMARKET_PRIVATE_KEY")
	setStr(&cfg.Polymarket.EncryptedKeyPath, "ARBENGINE_POLYMARKET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Polymarket.KeyPassword, "ARBENGINE_POLYMARKET_KEY_PASSWORD")
	setStr(&cfg.Polymarket.ApiKey, "ARBENGINE_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "ARBENGINE_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "ARBENGINE_POLYMARKET_API_PASSPHRASE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "ARBENGINE_REDIS_NAMESPACE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "ARBENGINE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "ARBENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBENGINE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")
	setStr(&cfg.Notify.MinSeverity, "ARBENGINE_NOTIFY_MIN_SEVERITY")

	// ── Log ──
	setStr(&cfg.Log.Level, "ARBENGINE_LOG_LEVEL")
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
