package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "CROSSARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CROSSARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CROSSARB_WALLET_KEY_PASSWORD")

	// ── CEX ──
	setStr(&cfg.CEX.Venue, "CROSSARB_CEX_VENUE")
	setStr(&cfg.CEX.BaseURL, "CROSSARB_CEX_BASE_URL")
	setStr(&cfg.CEX.WsURL, "CROSSARB_CEX_WS_URL")
	setStr(&cfg.CEX.APIKey, "CROSSARB_CEX_API_KEY")
	setStr(&cfg.CEX.APISecret, "CROSSARB_CEX_API_SECRET")

	// ── DEX ──
	setStr(&cfg.DEX.Venue, "CROSSARB_DEX_VENUE")
	setStr(&cfg.DEX.RPCURL, "CROSSARB_DEX_RPC_URL")
	setStr(&cfg.DEX.Router, "CROSSARB_DEX_ROUTER")
	setStr(&cfg.DEX.FarmAPIURL, "CROSSARB_DEX_FARM_API_URL")
	setUint64(&cfg.DEX.GasLimit, "CROSSARB_DEX_GAS_LIMIT")

	// ── Arbitrage ──
	setBool(&cfg.Arbitrage.Enabled, "CROSSARB_ARBITRAGE_ENABLED")
	setFloat64(&cfg.Arbitrage.ProfitThreshold, "CROSSARB_ARBITRAGE_PROFIT_THRESHOLD")
	setFloat64(&cfg.Arbitrage.MaxTradeSize, "CROSSARB_ARBITRAGE_MAX_TRADE_SIZE")
	setFloat64(&cfg.Arbitrage.SlippageBound, "CROSSARB_ARBITRAGE_SLIPPAGE_BOUND")
	setDuration(&cfg.Arbitrage.ScanInterval, "CROSSARB_ARBITRAGE_SCAN_INTERVAL")
	setDuration(&cfg.Arbitrage.LegDeadline, "CROSSARB_ARBITRAGE_LEG_DEADLINE")
	setInt(&cfg.Arbitrage.StaleAfter, "CROSSARB_ARBITRAGE_STALE_AFTER")
	setFloat64(&cfg.Arbitrage.NetworkFee, "CROSSARB_ARBITRAGE_NETWORK_FEE")
	setFloat64(&cfg.Arbitrage.SlippageRate, "CROSSARB_ARBITRAGE_SLIPPAGE_RATE")

	// ── Rebalance ──
	setBool(&cfg.Rebalance.Enabled, "CROSSARB_REBALANCE_ENABLED")
	setFloat64(&cfg.Rebalance.Threshold, "CROSSARB_REBALANCE_THRESHOLD")
	setDuration(&cfg.Rebalance.Interval, "CROSSARB_REBALANCE_INTERVAL")
	setStr(&cfg.Rebalance.HedgeVenue, "CROSSARB_REBALANCE_HEDGE_VENUE")

	// ── Farming ──
	setBool(&cfg.Farming.Enabled, "CROSSARB_FARMING_ENABLED")
	setFloat64(&cfg.Farming.APYThreshold, "CROSSARB_FARMING_APY_THRESHOLD")
	setDuration(&cfg.Farming.ScanInterval, "CROSSARB_FARMING_SCAN_INTERVAL")
	setFloat64(&cfg.Farming.EntrySize, "CROSSARB_FARMING_ENTRY_SIZE")
	setInt(&cfg.Farming.MaxPositions, "CROSSARB_FARMING_MAX_POSITIONS")
	setStringSlice(&cfg.Farming.Pairs, "CROSSARB_FARMING_PAIRS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "CROSSARB_S3_ARCHIVE_INTERVAL")
	setInt(&cfg.S3.RetentionDays, "CROSSARB_S3_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStringSlice(&cfg.Symbols, "CROSSARB_SYMBOLS")
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
