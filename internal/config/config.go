// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBENGINE_* environment variables.
type Config struct {
	Mode       ModeConfig       `toml:"mode"`
	Arbitrage  ArbitrageConfig  `toml:"arbitrage"`
	Risk       RiskConfig       `toml:"risk"`
	Execution  ExecutionConfig  `toml:"execution"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Feed       FeedConfig       `toml:"feed"`
	Heartbeat  HeartbeatConfig  `toml:"heartbeat"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Log        LogConfig        `toml:"log"`
}

// ModeConfig selects how much of the pipeline touches real venues.
type ModeConfig struct {
	// DryRun runs detection and risk checks but places no orders.
	DryRun bool `toml:"dry_run"`
	// KalshiOnly pairs Kalshi markets with each other instead of across
	// venues.
	KalshiOnly bool `toml:"kalshi_only"`
}

// ArbitrageConfig controls opportunity detection.
type ArbitrageConfig struct {
	// ProfitThreshold is the minimum margin as a fraction of the $1 payout.
	ProfitThreshold float64  `toml:"profit_threshold"`
	MaxQuoteAge     duration `toml:"max_quote_age"`
	IncludeFees     bool     `toml:"include_fees"`
	KalshiFeeRate   float64  `toml:"kalshi_fee_rate"`
}

// RiskConfig holds the circuit breaker limits. Zero caps are disabled.
type RiskConfig struct {
	MaxPositionPerMarket float64  `toml:"max_position_per_market"`
	MaxTotalPosition     float64  `toml:"max_total_position"`
	MaxDailyLoss         float64  `toml:"max_daily_loss"`
	MaxConsecutiveErrors int      `toml:"max_consecutive_errors"`
	Cooldown             duration `toml:"cooldown"`
	SnapshotInterval     duration `toml:"snapshot_interval"`
}

// ExecutionConfig controls order dispatch.
type ExecutionConfig struct {
	Timeout          duration `toml:"timeout"`
	PollInterval     duration `toml:"poll_interval"`
	MaxSlippageCents int      `toml:"max_slippage_cents"`
	// OrderRateLimit caps orders per venue per OrderRateWindow. Zero
	// disables the limit.
	OrderRateLimit  int      `toml:"order_rate_limit"`
	OrderRateWindow duration `toml:"order_rate_window"`
	// LockTTL is the lifetime of the single-instance trading lock.
	LockTTL duration `toml:"lock_ttl"`
}

// DiscoveryConfig controls market pairing.
type DiscoveryConfig struct {
	Leagues         []string `toml:"leagues"`
	TeamMappingPath string   `toml:"team_mapping_path"`
	// Force ignores the cached pair set on startup.
	Force           bool     `toml:"force"`
	CacheTTL        duration `toml:"cache_ttl"`
	RefreshInterval duration `toml:"refresh_interval"`
	// KalshiSeries maps a league to its Kalshi series ticker.
	KalshiSeries map[string]string `toml:"kalshi_series"`
	// PolymarketTags maps a league to the Gamma tag id of its games.
	PolymarketTags map[string]string `toml:"polymarket_tags"`
}

// FeedConfig controls venue streaming.
type FeedConfig struct {
	ReconnectDelay duration `toml:"reconnect_delay"`
	QueueSize      int      `toml:"queue_size"`
	QuoteRetention duration `toml:"quote_retention"`
}

// HeartbeatConfig controls the periodic status report.
type HeartbeatConfig struct {
	Interval duration `toml:"interval"`
}

// KalshiConfig holds Kalshi exchange API credentials and endpoints.
type KalshiConfig struct {
	ApiKey            string  `toml:"api_key"`
	RsaPrivateKeyPath string  `toml:"rsa_private_key_path"`
	BaseURL           string  `toml:"base_url"`
	WsURL             string  `toml:"ws_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// PolymarketConfig holds Polymarket endpoints, chain parameters and
// credentials.
type PolymarketConfig struct {
	ClobHost         string `toml:"clob_host"`
	GammaHost        string `toml:"gamma_host"`
	WsHost           string `toml:"ws_host"`
	ChainID          int    `toml:"chain_id"`
	Exchange         string `toml:"exchange"`
	NegRiskExchange  string `toml:"neg_risk_exchange"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ApiKey           string `toml:"api_key"`
	ApiSecret        string `toml:"api_secret"`
	ApiPassphrase    string `toml:"api_passphrase"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty DSN and
// Host disables durable storage.
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

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || p.Host != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// the cache, bus, lock and rate limiter.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// S3Config holds the archive bucket parameters. An empty Bucket disables
// archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig controls the HTTP/WebSocket API.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiKey      string   `toml:"api_key"`
	// RateLimit caps requests per client per RateWindow. Zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds alerting channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinSeverity       string   `toml:"min_severity"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// duration wraps time.Duration so it can be decoded from a TOML string like
// "5s" or "100ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler so redacted configs render
// durations as strings.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible default values. A TOML
// file decoded on top of this will overwrite only the keys it specifies.
func Defaults() Config {
	return Config{
		Mode: ModeConfig{
			DryRun: true,
		},
		Arbitrage: ArbitrageConfig{
			ProfitThreshold: 0.005,
			MaxQuoteAge:     duration{3 * time.Second},
			KalshiFeeRate:   0.07,
		},
		Risk: RiskConfig{
			MaxPositionPerMarket: 100,
			MaxTotalPosition:     500,
			MaxDailyLoss:         50,
			MaxConsecutiveErrors: 5,
			Cooldown:             duration{5 * time.Minute},
			SnapshotInterval:     duration{30 * time.Second},
		},
		Execution: ExecutionConfig{
			Timeout:          duration{5 * time.Second},
			PollInterval:     duration{250 * time.Millisecond},
			MaxSlippageCents: 1,
			OrderRateLimit:   20,
			OrderRateWindow:  duration{time.Second},
			LockTTL:          duration{30 * time.Second},
		},
		Discovery: DiscoveryConfig{
			Leagues:         []string{"nba", "nfl", "nhl", "mlb"},
			TeamMappingPath: "team_mapping.json",
			CacheTTL:        duration{2 * time.Hour},
			RefreshInterval: duration{15 * time.Minute},
			KalshiSeries: map[string]string{
				"nba": "KXNBAGAME",
				"nfl": "KXNFLGAME",
				"nhl": "KXNHLGAME",
				"mlb": "KXMLBGAME",
			},
			PolymarketTags: map[string]string{
				"nba": "745",
				"nfl": "450",
				"nhl": "899",
				"mlb": "100381",
			},
		},
		Feed: FeedConfig{
			ReconnectDelay: duration{2 * time.Second},
			QueueSize:      1024,
			QuoteRetention: duration{time.Hour},
		},
		Heartbeat: HeartbeatConfig{
			Interval: duration{60 * time.Second},
		},
		Kalshi: KalshiConfig{
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:             "wss://api.elections.kalshi.com/trade-api/ws/v2",
			RequestsPerSecond: 10,
		},
		Polymarket: PolymarketConfig{
			ClobHost:        "https://clob.polymarket.com",
			GammaHost:       "https://gamma-api.polymarket.com",
			WsHost:          "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:         137,
			Exchange:        "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			NegRiskExchange: "0xC5d563A36AE78145C45a50134d48A1215220f80a",
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			Namespace:  "arbengine",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Prefix:         "arbengine",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateLimit:  120,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			MinSeverity: "warning",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Threshold returns ProfitThreshold as a decimal.
func (a ArbitrageConfig) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(a.ProfitThreshold)
}

// FeeRate returns KalshiFeeRate as a decimal.
func (a ArbitrageConfig) FeeRate() decimal.Decimal {
	return decimal.NewFromFloat(a.KalshiFeeRate)
}

// Slippage returns MaxSlippageCents in dollars.
func (e ExecutionConfig) Slippage() decimal.Decimal {
	return decimal.New(int64(e.MaxSlippageCents), -2)
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSeverities enumerates the accepted values for NotifyConfig.MinSeverity.
var validSeverities = map[string]bool{
	"info":     true,
	"warning":  true,
	"critical": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	// Arbitrage
	if c.Arbitrage.ProfitThreshold < 0 || c.Arbitrage.ProfitThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("arbitrage: profit_threshold must be in [0, 1), got %g", c.Arbitrage.ProfitThreshold))
	}
	if c.Arbitrage.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "arbitrage: max_quote_age must be > 0")
	}
	if c.Arbitrage.KalshiFeeRate < 0 {
		errs = append(errs, "arbitrage: kalshi_fee_rate must be >= 0")
	}

	// Risk
	if c.Risk.MaxPositionPerMarket < 0 || c.Risk.MaxTotalPosition < 0 || c.Risk.MaxDailyLoss < 0 {
		errs = append(errs, "risk: caps must be >= 0")
	}
	if c.Risk.MaxPositionPerMarket > 0 && c.Risk.MaxTotalPosition > 0 &&
		c.Risk.MaxPositionPerMarket > c.Risk.MaxTotalPosition {
		errs = append(errs, "risk: max_position_per_market must not exceed max_total_position")
	}
	if c.Risk.MaxConsecutiveErrors < 1 {
		errs = append(errs, "risk: max_consecutive_errors must be >= 1")
	}
	if c.Risk.Cooldown.Duration <= 0 {
		errs = append(errs, "risk: cooldown must be > 0")
	}

	// Execution
	if c.Execution.Timeout.Duration <= 0 {
		errs = append(errs, "execution: timeout must be > 0")
	}
	if c.Execution.PollInterval.Duration <= 0 {
		errs = append(errs, "execution: poll_interval must be > 0")
	}
	if c.Execution.MaxSlippageCents < 0 || c.Execution.MaxSlippageCents > 10 {
		errs = append(errs, fmt.Sprintf("execution: max_slippage_cents must be 0-10, got %d", c.Execution.MaxSlippageCents))
	}
	if c.Execution.OrderRateLimit < 0 {
		errs = append(errs, "execution: order_rate_limit must be >= 0")
	}

	// Discovery
	if len(c.Discovery.Leagues) == 0 {
		errs = append(errs, "discovery: leagues must not be empty")
	}
	for _, league := range c.Discovery.Leagues {
		if _, ok := c.Discovery.KalshiSeries[strings.ToLower(league)]; !ok {
			errs = append(errs, fmt.Sprintf("discovery: no kalshi_series for league %q", league))
		}
		if c.Mode.KalshiOnly {
			continue
		}
		if _, ok := c.Discovery.PolymarketTags[strings.ToLower(league)]; !ok {
			errs = append(errs, fmt.Sprintf("discovery: no polymarket_tags for league %q", league))
		}
	}

	// Feed
	if c.Feed.QueueSize < 1 {
		errs = append(errs, "feed: queue_size must be >= 1")
	}
	if c.Heartbeat.Interval.Duration <= 0 {
		errs = append(errs, "heartbeat: interval must be > 0")
	}

	// Kalshi. Market data needs signed requests even in dry run.
	if c.Kalshi.ApiKey == "" {
		errs = append(errs, "kalshi: api_key must not be empty")
	}
	if c.Kalshi.RsaPrivateKeyPath == "" {
		errs = append(errs, "kalshi: rsa_private_key_path must not be empty")
	}
	if c.Kalshi.BaseURL == "" || c.Kalshi.WsURL == "" {
		errs = append(errs, "kalshi: base_url and ws_url must not be empty")
	}

	// Polymarket. Credentials are only needed to place orders.
	if !c.Mode.KalshiOnly {
		if c.Polymarket.GammaHost == "" || c.Polymarket.WsHost == "" {
			errs = append(errs, "polymarket: gamma_host and ws_host must not be empty")
		}
		if !c.Mode.DryRun {
			if c.Polymarket.ClobHost == "" {
				errs = append(errs, "polymarket: clob_host must not be empty")
			}
			if c.Polymarket.ChainID <= 0 {
				errs = append(errs, "polymarket: chain_id must be positive")
			}
			if c.Polymarket.PrivateKey == "" && c.Polymarket.EncryptedKeyPath == "" {
				errs = append(errs, "polymarket: either private_key or encrypted_key_path must be set for live trading")
			}
			if c.Polymarket.EncryptedKeyPath != "" && c.Polymarket.KeyPassword == "" {
				errs = append(errs, "polymarket: key_password is required when encrypted_key_path is set")
			}
			// Empty L2 credentials are derived from the wallet at startup.
			set := 0
			for _, v := range []string{c.Polymarket.ApiKey, c.Polymarket.ApiSecret, c.Polymarket.ApiPassphrase} {
				if v != "" {
					set++
				}
			}
			if set != 0 && set != 3 {
				errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must be set together")
			}
		}
	}

	// Postgres
	if c.Postgres.Enabled() && strings.TrimSpace(c.Postgres.DSN) == "" {
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
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify
	if !validSeverities[strings.ToLower(c.Notify.MinSeverity)] {
		errs = append(errs, fmt.Sprintf("notify: unknown min_severity %q (valid: info, warning, critical)", c.Notify.MinSeverity))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
