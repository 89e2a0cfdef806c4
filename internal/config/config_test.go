package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradingDefaults() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.CEX.APIKey = "k"
	cfg.CEX.APISecret = "s"
	cfg.DEX.RPCURL = "http://localhost:8545"
	cfg.DEX.Router = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	return cfg
}

func TestDefaultsValidateForTrading(t *testing.T) {
	cfg := tradingDefaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateMonitorModeNeedsNoWallet(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.DEX.RPCURL = "http://localhost:8545"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := tradingDefaults()
	cfg.Mode = "yolo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := tradingDefaults()
	cfg.Symbols = nil
	cfg.Redis.Addr = ""
	cfg.Arbitrage.ProfitThreshold = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbols")
	assert.Contains(t, err.Error(), "redis")
	assert.Contains(t, err.Error(), "profit_threshold")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := tradingDefaults()
	cfg.Wallet.PrivateKey = ""
	cfg.Wallet.EncryptedKeyPath = "/etc/crossarb/key.json"
	cfg.Wallet.KeyPassword = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}

func TestValidateFarmingRequiresFarmAPI(t *testing.T) {
	cfg := tradingDefaults()
	cfg.Farming.Enabled = true
	cfg.DEX.FarmAPIURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "farm_api_url")
}

// Each venue polls at its own cadence; a venue with no entry falls back to
// one second.
func TestPollIntervalPerVenue(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 100*time.Millisecond, cfg.Arbitrage.PollIntervalFor("binance"))
	assert.Equal(t, 400*time.Millisecond, cfg.Arbitrage.PollIntervalFor("raydium"))
	assert.Equal(t, time.Second, cfg.Arbitrage.PollIntervalFor("kraken"))
}

func TestValidateRejectsNonPositivePollInterval(t *testing.T) {
	cfg := tradingDefaults()
	cfg.Arbitrage.PollIntervals["binance"] = duration{0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval_per_venue.binance")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "arbitrage"
symbols = ["SOL-USDT"]

[arbitrage]
profit_threshold = 0.5
scan_interval = "3s"

[arbitrage.poll_interval_per_venue]
binance = "50ms"
raydium = "500ms"

[cex]
venue = "binance"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CROSSARB_CEX_API_KEY", "env-key")
	t.Setenv("CROSSARB_REBALANCE_THRESHOLD", "75.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arbitrage", cfg.Mode)
	assert.Equal(t, []string{"SOL-USDT"}, cfg.Symbols)
	assert.Equal(t, 0.5, cfg.Arbitrage.ProfitThreshold)
	assert.Equal(t, 3*time.Second, cfg.Arbitrage.ScanInterval.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Arbitrage.PollIntervalFor("binance"))
	assert.Equal(t, 500*time.Millisecond, cfg.Arbitrage.PollIntervalFor("raydium"))
	assert.Equal(t, "env-key", cfg.CEX.APIKey)
	assert.Equal(t, 75.5, cfg.Rebalance.Threshold)

	// Untouched fields keep their defaults.
	assert.Equal(t, "https://api.binance.com", cfg.CEX.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Arbitrage.LegDeadline.Duration)
}
