package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Env variable names for exchange credentials. Read once at startup;
// absence in REAL mode is a fatal configuration error, not a per-cycle failure.
const (
	EnvAPIKey    = "BINANCE_API_KEY"
	EnvSecretKey = "BINANCE_SECRET_KEY"
)

// Config holds the full application configuration, loaded from yaml and
// overridden by environment variables for secrets.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode            string   `yaml:"mode"` // PAPER or REAL
		Symbols         []string `yaml:"symbols"`
		QuoteAsset      string   `yaml:"quote_asset"`
		Interval        string   `yaml:"interval"`
		FastVWAP        int      `yaml:"fast_vwap"`
		SlowVWAP        int      `yaml:"slow_vwap"`
		RiskPct         string   `yaml:"risk_pct"`      // stop distance, percent of entry
		RewardRatio     string   `yaml:"reward_ratio"`  // risk:reward, e.g. "2"
		RiskFraction    string   `yaml:"risk_fraction"` // balance fraction per trade
		MinQty          string   `yaml:"min_qty"`
		CycleIntervalMS int      `yaml:"cycle_interval_ms"`
		PollIntervalMS  int      `yaml:"poll_interval_ms"`
		MaxWaitMin      int      `yaml:"max_wait_min"`
		MaxExitRetries  int      `yaml:"max_exit_retries"`
	} `yaml:"trading"`

	API struct {
		Binance struct {
			RestURL   string `yaml:"rest_url"`
			WSURL     string `yaml:"ws_url"`
			APIKey    string `yaml:"api_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"binance"`
	} `yaml:"api"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// TradingParams is the validated, decimal form of the trading section.
type TradingParams struct {
	RiskPct       decimal.Decimal
	RewardRatio   decimal.Decimal
	RiskFraction  decimal.Decimal
	MinQty        decimal.Decimal
	CycleInterval time.Duration
	PollInterval  time.Duration
	MaxWait       time.Duration
}

// LoadConfig reads and parses the config file, applies environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	t := &c.Trading
	if t.Mode == "" {
		t.Mode = "PAPER"
	}
	if t.QuoteAsset == "" {
		t.QuoteAsset = "USDT"
	}
	if t.Interval == "" {
		t.Interval = "4h"
	}
	if t.FastVWAP == 0 {
		t.FastVWAP = 1
	}
	if t.SlowVWAP == 0 {
		t.SlowVWAP = 6
	}
	if t.RiskPct == "" {
		t.RiskPct = "0.5"
	}
	if t.RewardRatio == "" {
		t.RewardRatio = "2"
	}
	if t.RiskFraction == "" {
		t.RiskFraction = "0.1"
	}
	if t.MinQty == "" {
		t.MinQty = "0.00001"
	}
	if t.CycleIntervalMS == 0 {
		t.CycleIntervalMS = 10_000
	}
	if t.PollIntervalMS == 0 {
		t.PollIntervalMS = 2_000
	}
	if t.MaxWaitMin == 0 {
		t.MaxWaitMin = 10
	}
	if t.MaxExitRetries == 0 {
		t.MaxExitRetries = 10
	}
	if c.API.Binance.RestURL == "" {
		c.API.Binance.RestURL = "https://api.binance.com"
	}
	if c.API.Binance.WSURL == "" {
		c.API.Binance.WSURL = "wss://stream.binance.com:9443"
	}
}

// Validate checks configuration validity (fail fast).
func (c *Config) Validate() error {
	t := &c.Trading
	if t.Mode != "PAPER" && t.Mode != "REAL" {
		return fmt.Errorf("unknown trading mode: %s", t.Mode)
	}
	if len(t.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if t.FastVWAP >= t.SlowVWAP {
		return fmt.Errorf("fast_vwap (%d) must be less than slow_vwap (%d)", t.FastVWAP, t.SlowVWAP)
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	if t.Mode == "REAL" && (c.API.Binance.APIKey == "" || c.API.Binance.SecretKey == "") {
		return fmt.Errorf("REAL mode requires %s and %s", EnvAPIKey, EnvSecretKey)
	}
	return nil
}

// Params parses the trading section into decimals and durations.
func (c *Config) Params() (TradingParams, error) {
	t := &c.Trading
	var p TradingParams
	var err error

	if p.RiskPct, err = decimal.NewFromString(t.RiskPct); err != nil {
		return p, fmt.Errorf("risk_pct: %w", err)
	}
	if p.RewardRatio, err = decimal.NewFromString(t.RewardRatio); err != nil {
		return p, fmt.Errorf("reward_ratio: %w", err)
	}
	if p.RiskFraction, err = decimal.NewFromString(t.RiskFraction); err != nil {
		return p, fmt.Errorf("risk_fraction: %w", err)
	}
	if p.MinQty, err = decimal.NewFromString(t.MinQty); err != nil {
		return p, fmt.Errorf("min_qty: %w", err)
	}
	if p.RiskPct.Sign() <= 0 || p.RewardRatio.Sign() <= 0 {
		return p, fmt.Errorf("risk_pct and reward_ratio must be positive")
	}
	if p.RiskFraction.Sign() <= 0 || p.RiskFraction.GreaterThan(decimal.NewFromInt(1)) {
		return p, fmt.Errorf("risk_fraction must be in (0, 1]")
	}

	p.CycleInterval = time.Duration(t.CycleIntervalMS) * time.Millisecond
	p.PollInterval = time.Duration(t.PollIntervalMS) * time.Millisecond
	p.MaxWait = time.Duration(t.MaxWaitMin) * time.Minute
	return p, nil
}

// overrideWithEnv applies environment variables over file values.
// Secrets belong in the environment, not in the config file.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.API.Binance.APIKey = key
	}
	if secret := os.Getenv(EnvSecretKey); secret != "" {
		cfg.API.Binance.SecretKey = secret
	}
}
