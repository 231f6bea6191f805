// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/farshadfahimi/sellerbot/internal/broker/phoenix"
	"github.com/farshadfahimi/sellerbot/internal/session"
	"github.com/farshadfahimi/sellerbot/internal/types"
)

// Config represents the full application configuration.
type Config struct {
	Session     SessionConfig     `yaml:"session"`
	Decision    DecisionConfig    `yaml:"decision"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Watchers    []WatcherConfig   `yaml:"watchers"`
	Accounts    []AccountConfig   `yaml:"accounts"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Broker      BrokerConfig      `yaml:"broker"`
}

// SessionConfig holds the trading session boundaries.
type SessionConfig struct {
	Timezone       string `yaml:"timezone"`
	PreMarketStart string `yaml:"premarket_start"`
	FreezeStart    string `yaml:"freeze_start"`
	FreezeEnd      string `yaml:"freeze_end"`
	TradingEnd     string `yaml:"trading_end"`
}

// DecisionConfig holds the default sell-decision thresholds. Per-watcher
// values override them.
type DecisionConfig struct {
	MinBuyVolume   int64   `yaml:"min_buy_volume"`
	SellDiscount   float64 `yaml:"sell_discount"`
	SellQueueRatio int64   `yaml:"sell_queue_ratio"`
	WeakBuyVolume  int64   `yaml:"weak_buy_volume"`
}

// ExecutionConfig holds order execution settings.
type ExecutionConfig struct {
	PollIntervalSec    int     `yaml:"poll_interval_sec"`
	RepriceTolerance   float64 `yaml:"reprice_tolerance"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RequestTimeoutSec  int     `yaml:"request_timeout_sec"`
}

// WatcherConfig describes one position to liquidate.
type WatcherConfig struct {
	Account string `yaml:"account"`
	Broker  string `yaml:"broker"`
	ISIN    string `yaml:"isin"`

	// Optional per-watcher overrides of the decision defaults.
	MinBuyVolume int64   `yaml:"min_buy_volume"`
	SellDiscount float64 `yaml:"sell_discount"`
}

// AccountConfig holds one trading account's credentials.
type AccountConfig struct {
	Username string `yaml:"username"`
	Broker   string `yaml:"broker"`
	Token    string `yaml:"token"`
}

// PersistenceConfig holds journal settings.
type PersistenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Channels []ChannelConfig `yaml:"channels"`
	Events   []string        `yaml:"events"`
}

// ChannelConfig holds a single alert channel configuration.
type ChannelConfig struct {
	Type     string `yaml:"type"` // telegram | console
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// BrokerConfig holds broker transport settings.
type BrokerConfig struct {
	Type string `yaml:"type"` // phoenix, sim
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration. Defaults are filled in for settings
// that may be omitted.
func (c *Config) Validate() error {
	var errs []string

	// Session validation
	for _, field := range []struct {
		name, value string
	}{
		{"session.premarket_start", c.Session.PreMarketStart},
		{"session.freeze_start", c.Session.FreezeStart},
		{"session.freeze_end", c.Session.FreezeEnd},
		{"session.trading_end", c.Session.TradingEnd},
	} {
		if field.value == "" {
			continue
		}
		if _, err := session.ParseTimeOfDay(field.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field.name, err))
		}
	}
	if c.Session.Timezone != "" {
		if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("session.timezone %q is not a valid location", c.Session.Timezone))
		}
	}

	// Decision defaults
	if c.Decision.MinBuyVolume < 0 {
		errs = append(errs, "decision.min_buy_volume must not be negative")
	}
	if c.Decision.SellDiscount != 0 && (c.Decision.SellDiscount <= 0 || c.Decision.SellDiscount > 1) {
		errs = append(errs, "decision.sell_discount must be between 0 and 1")
	}

	// Execution defaults
	if c.Execution.PollIntervalSec <= 0 {
		c.Execution.PollIntervalSec = 1
	}
	if c.Execution.RepriceTolerance < 0 {
		errs = append(errs, "execution.reprice_tolerance must not be negative")
	}

	// Watchers
	if len(c.Watchers) == 0 {
		errs = append(errs, "at least one watcher is required")
	}
	seen := make(map[string]bool)
	for i, w := range c.Watchers {
		if w.Account == "" {
			errs = append(errs, fmt.Sprintf("watchers[%d].account is required", i))
		}
		if w.ISIN == "" {
			errs = append(errs, fmt.Sprintf("watchers[%d].isin is required", i))
		}
		if _, err := phoenix.ParseCode(w.Broker); err != nil {
			errs = append(errs, fmt.Sprintf("watchers[%d].broker %q is not a known broker code", i, w.Broker))
		}
		key := fmt.Sprintf("%s@%s:%s", w.Account, w.Broker, w.ISIN)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("watchers[%d] duplicates %s", i, key))
		}
		seen[key] = true
	}

	// Accounts
	if c.Broker.Type == "" {
		c.Broker.Type = "phoenix"
	}
	if c.Broker.Type != "phoenix" && c.Broker.Type != "sim" {
		errs = append(errs, "broker.type must be 'phoenix' or 'sim'")
	}
	if c.Broker.Type == "phoenix" {
		accounts := make(map[string]bool)
		for i, a := range c.Accounts {
			if a.Username == "" {
				errs = append(errs, fmt.Sprintf("accounts[%d].username is required", i))
			}
			if a.Token == "" {
				errs = append(errs, fmt.Sprintf("accounts[%d].token is required", i))
			}
			accounts[a.Username+"@"+a.Broker] = true
		}
		for i, w := range c.Watchers {
			if !accounts[w.Account+"@"+w.Broker] {
				errs = append(errs, fmt.Sprintf("watchers[%d] references unknown account %s@%s", i, w.Account, w.Broker))
			}
		}
	}

	// Persistence validation
	if c.Persistence.Enabled && c.Persistence.Path == "" {
		errs = append(errs, "persistence.path is required when persistence is enabled")
	}

	// Metrics defaults
	if c.Metrics.Enabled {
		if c.Metrics.Port == 0 {
			c.Metrics.Port = 9090
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// SessionBoundaries converts the session section to clock boundaries,
// falling back to the exchange defaults for omitted fields.
func (c *Config) SessionBoundaries() (session.Boundaries, error) {
	b := session.DefaultBoundaries()

	fields := []struct {
		value string
		dst   *session.TimeOfDay
	}{
		{c.Session.PreMarketStart, &b.PreMarketStart},
		{c.Session.FreezeStart, &b.FreezeStart},
		{c.Session.FreezeEnd, &b.FreezeEnd},
		{c.Session.TradingEnd, &b.TradingEnd},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		tod, err := session.ParseTimeOfDay(f.value)
		if err != nil {
			return session.Boundaries{}, err
		}
		*f.dst = tod
	}

	if err := b.Validate(); err != nil {
		return session.Boundaries{}, err
	}
	return b, nil
}

// Location returns the configured timezone, defaulting to Tehran.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Session.Timezone
	if tz == "" {
		tz = "Asia/Tehran"
	}
	return time.LoadLocation(tz)
}

// PollInterval returns the watcher tick interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Execution.PollIntervalSec) * time.Second
}

// RequestTimeout returns the broker API request timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.Execution.RequestTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Execution.RequestTimeoutSec) * time.Second
}

// MinBuyVolumeFor returns the demand threshold for one watcher.
func (c *Config) MinBuyVolumeFor(w WatcherConfig) int64 {
	if w.MinBuyVolume > 0 {
		return w.MinBuyVolume
	}
	if c.Decision.MinBuyVolume > 0 {
		return c.Decision.MinBuyVolume
	}
	return 30_000_000
}

// SellDiscountFor returns the discount factor for one watcher.
func (c *Config) SellDiscountFor(w WatcherConfig) decimal.Decimal {
	if w.SellDiscount > 0 {
		return decimal.NewFromFloat(w.SellDiscount)
	}
	if c.Decision.SellDiscount > 0 {
		return decimal.NewFromFloat(c.Decision.SellDiscount)
	}
	return decimal.NewFromFloat(0.99)
}

// RepriceTolerance returns the price tolerance used when repricing.
func (c *Config) RepriceTolerance() decimal.Decimal {
	if c.Execution.RepriceTolerance > 0 {
		return decimal.NewFromFloat(c.Execution.RepriceTolerance)
	}
	return decimal.NewFromInt(1)
}

// TokenFor returns the configured token for an account, if any.
func (c *Config) TokenFor(username, broker string) (string, bool) {
	for _, a := range c.Accounts {
		if a.Username == username && a.Broker == broker {
			return a.Token, true
		}
	}
	return "", false
}

// IsAlertEventEnabled checks if an alert event type is enabled.
func (c *Config) IsAlertEventEnabled(event string) bool {
	if !c.Alerting.Enabled {
		return false
	}
	// If no events specified, all are enabled
	if len(c.Alerting.Events) == 0 {
		return true
	}
	for _, e := range c.Alerting.Events {
		if e == event || e == "all" {
			return true
		}
	}
	return false
}
