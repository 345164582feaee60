// Package config loads the session configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/raykavin/intrabot/trailing"
	"github.com/spf13/viper"
)

// Config is the full session configuration.
type Config struct {
	Data       DataConfig       `mapstructure:"data"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Session    SessionConfig    `mapstructure:"session"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Order      OrderConfig      `mapstructure:"order"`
	Strategies []StrategyConfig `mapstructure:"strategies"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	LogLevel   string           `mapstructure:"log_level"`
}

// DataConfig points at the historical candle files.
type DataConfig struct {
	Dir   string       `mapstructure:"dir"`
	Feeds []FeedConfig `mapstructure:"feeds"`
}

// FeedConfig binds one symbol to one CSV file. File paths are relative to
// Data.Dir unless absolute.
type FeedConfig struct {
	Symbol string `mapstructure:"symbol"`
	File   string `mapstructure:"file"`
}

// SimulationConfig controls the synthetic tick stream.
type SimulationConfig struct {
	Seed           int64    `mapstructure:"seed"`
	TicksPerCandle int      `mapstructure:"ticks_per_candle"`
	Spread         float64  `mapstructure:"spread"`
	Speed          float64  `mapstructure:"speed"`
	Timeframes     []string `mapstructure:"timeframes"`
}

// SessionConfig sets the trading day boundaries.
type SessionConfig struct {
	WarningAt   string `mapstructure:"warning_at"`
	SquareOffAt string `mapstructure:"square_off_at"`
}

// RiskConfig parameterizes the risk manager.
type RiskConfig struct {
	Capital        float64 `mapstructure:"capital"`
	PerStrategyCap int     `mapstructure:"per_strategy_cap"`
	GlobalCap      int     `mapstructure:"global_cap"`
	NotionalCap    float64 `mapstructure:"notional_cap"`
	DailyLossCap   float64 `mapstructure:"daily_loss_cap"`
}

// OrderConfig parameterizes default sizing.
type OrderConfig struct {
	AllocationPct float64 `mapstructure:"allocation_pct"`
}

// StrategyConfig instantiates one strategy from its registered class.
type StrategyConfig struct {
	Class    string          `mapstructure:"class"`
	ID       string          `mapstructure:"id"`
	Params   map[string]any  `mapstructure:"params"`
	Trailing trailing.Config `mapstructure:"trailing"`
}

// StorageConfig selects the observability backend.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // none, buntdb, sqlite, redis
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the redis backend connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelegramConfig holds the notification channel settings.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	Users   []int  `mapstructure:"users"`
}

// Load reads the configuration file at path, applies defaults and env
// overrides (INTRABOT_ prefix) and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("INTRABOT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("simulation.seed", 1)
	v.SetDefault("simulation.ticks_per_candle", 10)
	v.SetDefault("simulation.spread", 0.001)
	v.SetDefault("simulation.speed", 0)
	v.SetDefault("simulation.timeframes", []string{"1m", "3m", "5m", "15m", "60m"})
	v.SetDefault("session.warning_at", "15:00")
	v.SetDefault("session.square_off_at", "15:15")
	v.SetDefault("risk.capital", 1_000_000)
	v.SetDefault("risk.per_strategy_cap", 3)
	v.SetDefault("risk.global_cap", 5)
	v.SetDefault("risk.notional_cap", 1_000_000)
	v.SetDefault("risk.daily_loss_cap", 25_000)
	v.SetDefault("order.allocation_pct", 0.10)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("telegram.enabled", false)
}

// Validate rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	if c.Risk.Capital <= 0 {
		return fmt.Errorf("risk.capital must be positive, got %g", c.Risk.Capital)
	}
	if c.Simulation.TicksPerCandle < 2 {
		return fmt.Errorf("simulation.ticks_per_candle must be at least 2, got %d", c.Simulation.TicksPerCandle)
	}
	if c.Simulation.Spread < 0 {
		return fmt.Errorf("simulation.spread must not be negative, got %g", c.Simulation.Spread)
	}
	if c.Order.AllocationPct <= 0 || c.Order.AllocationPct > 1 {
		return fmt.Errorf("order.allocation_pct must be in (0, 1], got %g", c.Order.AllocationPct)
	}
	if _, err := time.Parse("15:04", c.Session.WarningAt); err != nil {
		return fmt.Errorf("session.warning_at: %w", err)
	}
	if _, err := time.Parse("15:04", c.Session.SquareOffAt); err != nil {
		return fmt.Errorf("session.square_off_at: %w", err)
	}

	seen := map[string]bool{}
	for i, sc := range c.Strategies {
		if sc.Class == "" {
			return fmt.Errorf("strategies[%d]: class is required", i)
		}
		if sc.ID == "" {
			return fmt.Errorf("strategies[%d]: id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("strategies[%d]: duplicate id %q", i, sc.ID)
		}
		seen[sc.ID] = true
	}

	switch c.Storage.Backend {
	case "", "none", "buntdb", "sqlite", "redis":
	default:
		return fmt.Errorf("storage.backend must be one of none, buntdb, sqlite, redis; got %q", c.Storage.Backend)
	}
	return nil
}
