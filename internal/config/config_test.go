package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadClean(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TRADING_MODE", "")
	t.Setenv("ALERT_WEBHOOK_URL", "")
	return Load(dir)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadClean(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Trading.Mode)
	assert.True(t, cfg.IsSimMode())
	assert.Equal(t, []string{"BTC/USDT"}, cfg.Trading.Symbols)
	assert.Equal(t, time.Minute, cfg.Trading.ScanInterval)
	assert.Equal(t, 100000.0, cfg.Trading.InitialEquity)

	assert.Equal(t, 0.10, cfg.Risk.MaxPositionFraction)
	assert.Equal(t, 0.25, cfg.Risk.KellyFraction)
	assert.Equal(t, 5, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 0.95, cfg.Risk.VaRConfidence)
	assert.Equal(t, 4, cfg.Risk.SizePrecision)

	assert.Equal(t, 10000.0, cfg.Execution.SplitThreshold)
	assert.Equal(t, 3, cfg.Execution.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.RetryBackoff)

	assert.Equal(t, []float64{1.5, 2.0, 2.5}, cfg.Ledger.LadderRiskMultiples)
	assert.InDelta(t, 1.0/3.0, cfg.Ledger.LadderCloseFraction, 1e-12)

	assert.Equal(t, 0.10, cfg.Safety.MaxDrawdown)
	assert.Equal(t, 15*time.Minute, cfg.Safety.Cooldown)
	assert.True(t, cfg.Safety.ForceCloseOnCritical)

	assert.Equal(t, 20, cfg.Optimizer.PopulationSize)
	assert.Equal(t, 1.5, cfg.Optimizer.TargetSharpe)
	assert.Zero(t, cfg.Optimizer.Seed)

	assert.False(t, cfg.Oracle.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
[trading]
mode = "live"
symbols = ["ETH/USDT", "SOL/USDT"]
scan_interval = "30s"

[risk]
max_position_fraction = 0.05
edge_gate_enabled = true

[optimizer]
seed = 42
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644))

	cfg, err := loadClean(t, dir)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.False(t, cfg.IsSimMode())
	assert.Equal(t, []string{"ETH/USDT", "SOL/USDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Trading.ScanInterval)

	// File values override defaults; untouched keys keep them.
	assert.Equal(t, 0.05, cfg.Risk.MaxPositionFraction)
	assert.True(t, cfg.Risk.EdgeGateEnabled)
	assert.Equal(t, 0.25, cfg.Risk.KellyFraction)
	assert.Equal(t, int64(42), cfg.Optimizer.Seed)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not [valid toml"), 0o644))

	_, err := loadClean(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config.toml")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("TRADING_MODE", "live")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example.com/alerts")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sk-test-key", cfg.Oracle.APIKey)
	assert.Equal(t, "live", cfg.Trading.Mode)
	assert.Equal(t, "https://hooks.example.com/alerts", cfg.Notifications.Webhook.URL)
	assert.True(t, cfg.Notifications.Webhook.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := loadClean(t, t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Trading.Mode = "paper" }, "invalid trading mode"},
		{"confidence above one", func(c *Config) { c.Trading.MinConfidence = 1.5 }, "min_confidence"},
		{"zero position fraction", func(c *Config) { c.Risk.MaxPositionFraction = 0 }, "max_position_fraction"},
		{"kelly above one", func(c *Config) { c.Risk.KellyFraction = 1.2 }, "kelly_fraction"},
		{"drawdown at one", func(c *Config) { c.Risk.MaxDrawdown = 1.0 }, "max_drawdown"},
		{"safety drawdown zero", func(c *Config) { c.Safety.MaxDrawdown = 0 }, "safety max_drawdown"},
		{"negative retries", func(c *Config) { c.Execution.MaxRetries = -1 }, "max_retries"},
		{"ladder fraction zero", func(c *Config) { c.Ledger.LadderCloseFraction = 0 }, "ladder_close_fraction"},
		{"population too small", func(c *Config) { c.Optimizer.PopulationSize = 1 }, "population_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
