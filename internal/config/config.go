// Package config defines the top-level configuration for the coordinator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	CEX       CEXConfig       `toml:"cex"`
	DEX       DEXConfig       `toml:"dex"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Rebalance RebalanceConfig `toml:"rebalance"`
	Farming   FarmingConfig   `toml:"farming"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Symbols   []string        `toml:"symbols"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the on-chain signing key sources.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// CEXConfig holds the centralized exchange endpoints and credentials.
type CEXConfig struct {
	Venue     string `toml:"venue"`
	BaseURL   string `toml:"base_url"`
	WsURL     string `toml:"ws_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

// DEXConfig holds the on-chain venue parameters.
type DEXConfig struct {
	Venue      string                `toml:"venue"`
	RPCURL     string                `toml:"rpc_url"`
	Router     string                `toml:"router"`
	FarmAPIURL string                `toml:"farm_api_url"`
	GasLimit   uint64                `toml:"gas_limit"`
	Pools      map[string]PoolConfig `toml:"pools"`
}

// PoolConfig describes one AMM pair, keyed by instrument in DEXConfig.Pools.
type PoolConfig struct {
	Pair          string `toml:"pair"`
	BaseToken     string `toml:"base_token"`
	QuoteToken    string `toml:"quote_token"`
	BaseDecimals  int    `toml:"base_decimals"`
	QuoteDecimals int    `toml:"quote_decimals"`
}

// ArbitrageConfig holds detection and execution parameters for the
// cross-venue arbitrage loop.
type ArbitrageConfig struct {
	Enabled         bool                `toml:"enabled"`
	ProfitThreshold float64             `toml:"profit_threshold"`
	MaxTradeSize    float64             `toml:"max_trade_size"`
	SlippageBound   float64             `toml:"slippage_bound"`
	ScanInterval    duration            `toml:"scan_interval"`
	PollIntervals   map[string]duration `toml:"poll_interval_per_venue"`
	LegDeadline     duration            `toml:"leg_deadline"`
	StaleAfter      int                 `toml:"stale_after"`
	VenueFeeRates   map[string]float64  `toml:"venue_fee_rates"`
	NetworkFee      float64             `toml:"network_fee"`
	SlippageRate    float64             `toml:"slippage_rate"`
}

// PollIntervalFor returns the venue's polling cadence. Venues differ by an
// order of magnitude here (an exchange updates its book far faster than a
// chain produces blocks), so an unconfigured venue falls back to one second.
func (a ArbitrageConfig) PollIntervalFor(venue string) time.Duration {
	if d, ok := a.PollIntervals[venue]; ok && d.Duration > 0 {
		return d.Duration
	}
	return time.Second
}

// RebalanceConfig holds the delta-neutral rebalance parameters.
type RebalanceConfig struct {
	Enabled    bool     `toml:"enabled"`
	Threshold  float64  `toml:"threshold"`
	Interval   duration `toml:"interval"`
	HedgeVenue string   `toml:"hedge_venue"`
}

// FarmingConfig holds the yield-farming entry parameters.
type FarmingConfig struct {
	Enabled      bool     `toml:"enabled"`
	APYThreshold float64  `toml:"apy_threshold"`
	ScanInterval duration `toml:"scan_interval"`
	EntrySize    float64  `toml:"entry_size"`
	MaxPositions int      `toml:"max_positions"`
	Pairs        []string `toml:"pairs"` // "pool:token:quote" entries
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
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

// S3Config holds S3-compatible object storage parameters for trade
// history archival.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
	RetentionDays   int      `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		CEX: CEXConfig{
			Venue:   "binance",
			BaseURL: "https://api.binance.com",
			WsURL:   "wss://stream.binance.com:9443/ws",
		},
		DEX: DEXConfig{
			Venue:    "raydium",
			GasLimit: 400_000,
			Pools:    map[string]PoolConfig{},
		},
		Arbitrage: ArbitrageConfig{
			Enabled:         true,
			ProfitThreshold: 0.25,
			MaxTradeSize:    25.0,
			SlippageBound:   0.005,
			ScanInterval: duration{2 * time.Second},
			PollIntervals: map[string]duration{
				"binance": {100 * time.Millisecond},
				"raydium": {400 * time.Millisecond},
			},
			LegDeadline: duration{5 * time.Second},
			StaleAfter:      3,
			VenueFeeRates:   map[string]float64{},
			NetworkFee:      0.02,
			SlippageRate:    0.001,
		},
		Rebalance: RebalanceConfig{
			Enabled:    true,
			Threshold:  50.0,
			Interval:   duration{30 * time.Second},
			HedgeVenue: "binance",
		},
		Farming: FarmingConfig{
			Enabled:      false,
			APYThreshold: 0.20,
			ScanInterval: duration{5 * time.Minute},
			EntrySize:    10.0,
			MaxPositions: 3,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "crossarb-data",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
			RetentionDays:   90,
		},
		Notify: NotifyConfig{
			Events: []string{"hedge_failed", "instrument_halted", "error"},
		},
		Symbols:  []string{"ETH-USDT"},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arbitrage": true,
	"farming":   true,
	"monitor":   true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arbitrage, farming, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one instrument must be configured")
	}

	// Trading modes submit on-chain swaps and need a signing key.
	needsWallet := c.Mode != "monitor"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.CEX.Venue == "" {
		errs = append(errs, "cex: venue must not be empty")
	}
	if c.CEX.BaseURL == "" {
		errs = append(errs, "cex: base_url must not be empty")
	}
	if needsWallet && c.CEX.APIKey == "" {
		errs = append(errs, "cex: api_key is required for mode "+c.Mode)
	}

	if c.DEX.Venue == "" {
		errs = append(errs, "dex: venue must not be empty")
	}
	if c.DEX.RPCURL == "" {
		errs = append(errs, "dex: rpc_url must not be empty")
	}
	if needsWallet && c.DEX.Router == "" {
		errs = append(errs, "dex: router must not be empty for mode "+c.Mode)
	}
	for inst, pool := range c.DEX.Pools {
		if pool.Pair == "" || pool.BaseToken == "" || pool.QuoteToken == "" {
			errs = append(errs, fmt.Sprintf("dex: pool %s must set pair, base_token, and quote_token", inst))
		}
		if pool.BaseDecimals <= 0 || pool.QuoteDecimals <= 0 {
			errs = append(errs, fmt.Sprintf("dex: pool %s decimals must be positive", inst))
		}
	}

	if c.Arbitrage.Enabled {
		if c.Arbitrage.ProfitThreshold <= 0 {
			errs = append(errs, "arbitrage: profit_threshold must be > 0 when enabled")
		}
		if c.Arbitrage.MaxTradeSize <= 0 {
			errs = append(errs, "arbitrage: max_trade_size must be > 0 when enabled")
		}
		if c.Arbitrage.SlippageBound < 0 {
			errs = append(errs, "arbitrage: slippage_bound must be >= 0")
		}
		if c.Arbitrage.StaleAfter < 1 {
			errs = append(errs, "arbitrage: stale_after must be >= 1")
		}
	}
	for venue, d := range c.Arbitrage.PollIntervals {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("arbitrage: poll_interval_per_venue.%s must be > 0", venue))
		}
	}

	if c.Rebalance.Enabled {
		if c.Rebalance.Threshold <= 0 {
			errs = append(errs, "rebalance: threshold must be > 0 when enabled")
		}
		if c.Rebalance.HedgeVenue == "" {
			errs = append(errs, "rebalance: hedge_venue must not be empty when enabled")
		}
	}

	if c.Farming.Enabled {
		if c.Farming.APYThreshold <= 0 {
			errs = append(errs, "farming: apy_threshold must be > 0 when enabled")
		}
		if c.Farming.EntrySize <= 0 {
			errs = append(errs, "farming: entry_size must be > 0 when enabled")
		}
		if c.Farming.MaxPositions < 1 {
			errs = append(errs, "farming: max_positions must be >= 1")
		}
		if c.DEX.FarmAPIURL == "" {
			errs = append(errs, "dex: farm_api_url is required when farming is enabled")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

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
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
