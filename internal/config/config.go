// Package config provides configuration management for the trading loop.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Execution     ExecutionConfig    `mapstructure:"execution"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Safety        SafetyConfig       `mapstructure:"safety"`
	Optimizer     OptimizerConfig    `mapstructure:"optimizer"`
	Oracle        OracleConfig       `mapstructure:"oracle"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// TradingConfig holds scan loop configuration.
type TradingConfig struct {
	Mode                string        `mapstructure:"mode"` // "live", "sim"
	Symbols             []string      `mapstructure:"symbols"`
	ScanInterval        time.Duration `mapstructure:"scan_interval"`
	UpdateInterval      time.Duration `mapstructure:"update_interval"`
	PerfInterval        time.Duration `mapstructure:"perf_interval"`
	SafetyInterval      time.Duration `mapstructure:"safety_interval"`
	MinConfidence       float64       `mapstructure:"min_confidence"`
	MinRiskReward       float64       `mapstructure:"min_risk_reward"`
	MinMarketQuality    float64       `mapstructure:"min_market_quality"`
	DefaultSizeFraction float64       `mapstructure:"default_size_fraction"`
	FeedStaleness       time.Duration `mapstructure:"feed_staleness"`
	InitialEquity       float64       `mapstructure:"initial_equity"` // starting equity in sim mode
}

// RiskConfig holds risk engine configuration.
type RiskConfig struct {
	MaxPositionFraction  float64 `mapstructure:"max_position_fraction"`
	MinConfidence        float64 `mapstructure:"min_confidence"`
	KellyFraction        float64 `mapstructure:"kelly_fraction"` // safety multiple on full Kelly
	MaxDrawdown          float64 `mapstructure:"max_drawdown"`
	DailyLossLimit       float64 `mapstructure:"daily_loss_limit"`
	MaxOpenPositions     int     `mapstructure:"max_open_positions"`
	VaRConfidence        float64 `mapstructure:"var_confidence"`
	CorrelationThreshold float64 `mapstructure:"correlation_threshold"`
	TargetVolatility     float64 `mapstructure:"target_volatility"`
	SizePrecision        int     `mapstructure:"size_precision"` // decimal places for size rounding
	EdgeGateEnabled      bool    `mapstructure:"edge_gate_enabled"`
	EdgeSafetyBps        float64 `mapstructure:"edge_safety_bps"`
}

// ExecutionConfig holds order routing configuration.
type ExecutionConfig struct {
	SplitThreshold    float64       `mapstructure:"split_threshold"` // notional above which orders are sliced
	SlippageTolerance float64       `mapstructure:"slippage_tolerance"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	InterSliceDelay   time.Duration `mapstructure:"inter_slice_delay"`
	OrderTimeout      time.Duration `mapstructure:"order_timeout"`
	VenueTimeout      time.Duration `mapstructure:"venue_timeout"`
	BookDepthLevels   int           `mapstructure:"book_depth_levels"`
}

// LedgerConfig holds position management configuration.
type LedgerConfig struct {
	DefaultStopPercent   float64   `mapstructure:"default_stop_percent"`   // adverse move for initial stop
	DefaultTargetPercent float64   `mapstructure:"default_target_percent"` // favorable move for initial target
	TrailingStopPercent  float64   `mapstructure:"trailing_stop_percent"`  // trailing distance as % of entry
	LadderRiskMultiples  []float64 `mapstructure:"ladder_risk_multiples"`  // take-profit rungs in initial-risk multiples
	LadderCloseFraction  float64   `mapstructure:"ladder_close_fraction"`  // original-size fraction closed per rung
	NegligibleSize       float64   `mapstructure:"negligible_size"`        // dust threshold for full close
}

// SafetyConfig holds circuit breaker configuration.
type SafetyConfig struct {
	MaxDrawdown          float64       `mapstructure:"max_drawdown"`
	DailyLossLimit       float64       `mapstructure:"daily_loss_limit"`
	FailureThreshold     int           `mapstructure:"failure_threshold"` // consecutive venue failures
	Cooldown             time.Duration `mapstructure:"cooldown"`
	CriticalCooldown     time.Duration `mapstructure:"critical_cooldown"`
	ForceCloseOnCritical bool          `mapstructure:"force_close_on_critical"`
	VolatilityWarning    float64       `mapstructure:"volatility_warning"`
	SlippageWarning      float64       `mapstructure:"slippage_warning"`
}

// OptimizerConfig holds genetic search configuration.
type OptimizerConfig struct {
	PopulationSize     int     `mapstructure:"population_size"`
	Generations        int     `mapstructure:"generations"`
	MutationRate       float64 `mapstructure:"mutation_rate"`
	OptimizationPeriod int     `mapstructure:"optimization_period"` // trades between scheduled runs
	TargetSharpe       float64 `mapstructure:"target_sharpe"`
	Seed               int64   `mapstructure:"seed"` // 0 means time-seeded
}

// OracleConfig holds advisory oracle configuration.
type OracleConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationConfig holds alert sink configuration.
type NotificationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook alert configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/autotrader"
	}
	return filepath.Join(home, ".config", "autotrader")
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default config directory is used. Missing files fall back to
// defaults so a fresh install can run in sim mode.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "sim")
	v.SetDefault("trading.symbols", []string{"BTC/USDT"})
	v.SetDefault("trading.scan_interval", time.Minute)
	v.SetDefault("trading.update_interval", 5*time.Minute)
	v.SetDefault("trading.perf_interval", time.Hour)
	v.SetDefault("trading.safety_interval", time.Minute)
	v.SetDefault("trading.min_confidence", 0.6)
	v.SetDefault("trading.min_risk_reward", 1.5)
	v.SetDefault("trading.min_market_quality", 0.5)
	v.SetDefault("trading.default_size_fraction", 0.02)
	v.SetDefault("trading.feed_staleness", 2*time.Minute)
	v.SetDefault("trading.initial_equity", 100000.0)

	v.SetDefault("risk.max_position_fraction", 0.10)
	v.SetDefault("risk.min_confidence", 0.6)
	v.SetDefault("risk.kelly_fraction", 0.25)
	v.SetDefault("risk.max_drawdown", 0.15)
	v.SetDefault("risk.daily_loss_limit", 0.03)
	v.SetDefault("risk.max_open_positions", 5)
	v.SetDefault("risk.var_confidence", 0.95)
	v.SetDefault("risk.correlation_threshold", 0.7)
	v.SetDefault("risk.target_volatility", 0.15)
	v.SetDefault("risk.size_precision", 4)
	v.SetDefault("risk.edge_safety_bps", 3.0)

	v.SetDefault("execution.split_threshold", 10000.0)
	v.SetDefault("execution.slippage_tolerance", 0.001)
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_backoff", 500*time.Millisecond)
	v.SetDefault("execution.inter_slice_delay", 200*time.Millisecond)
	v.SetDefault("execution.order_timeout", 30*time.Second)
	v.SetDefault("execution.venue_timeout", 10*time.Second)
	v.SetDefault("execution.book_depth_levels", 5)

	v.SetDefault("ledger.default_stop_percent", 0.02)
	v.SetDefault("ledger.default_target_percent", 0.05)
	v.SetDefault("ledger.trailing_stop_percent", 0.02)
	v.SetDefault("ledger.ladder_risk_multiples", []float64{1.5, 2.0, 2.5})
	v.SetDefault("ledger.ladder_close_fraction", 1.0/3.0)
	v.SetDefault("ledger.negligible_size", 1e-6)

	v.SetDefault("safety.max_drawdown", 0.10)
	v.SetDefault("safety.daily_loss_limit", 0.05)
	v.SetDefault("safety.failure_threshold", 5)
	v.SetDefault("safety.cooldown", 15*time.Minute)
	v.SetDefault("safety.critical_cooldown", time.Hour)
	v.SetDefault("safety.force_close_on_critical", true)
	v.SetDefault("safety.volatility_warning", 0.30)
	v.SetDefault("safety.slippage_warning", 0.005)

	v.SetDefault("optimizer.population_size", 20)
	v.SetDefault("optimizer.generations", 10)
	v.SetDefault("optimizer.mutation_rate", 0.15)
	v.SetDefault("optimizer.optimization_period", 20)
	v.SetDefault("optimizer.target_sharpe", 1.5)

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.timeout", 15*time.Second)

	v.SetDefault("notifications.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "sim" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'sim')", c.Trading.Mode)
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1")
	}
	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("max_position_fraction must be in (0, 1]")
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("kelly_fraction must be in (0, 1]")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("max_drawdown must be in (0, 1)")
	}
	if c.Safety.MaxDrawdown <= 0 || c.Safety.MaxDrawdown >= 1 {
		return fmt.Errorf("safety max_drawdown must be in (0, 1)")
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.Ledger.LadderCloseFraction <= 0 || c.Ledger.LadderCloseFraction > 1 {
		return fmt.Errorf("ladder_close_fraction must be in (0, 1]")
	}
	if c.Optimizer.PopulationSize < 2 {
		return fmt.Errorf("population_size must be at least 2")
	}
	return nil
}

// IsSimMode returns true if simulated trading mode is enabled.
func (c *Config) IsSimMode() bool {
	return c.Trading.Mode == "sim"
}
