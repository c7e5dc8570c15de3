package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/quantrail/trendscan/internal/models"
	"github.com/quantrail/trendscan/internal/policy"
)

// Config represents the complete application configuration
type Config struct {
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// InstrumentConfig names one tracked instrument.
type InstrumentConfig struct {
	Symbol string `mapstructure:"symbol"`
	Name   string `mapstructure:"name"`
}

// ScannerConfig holds trend detection behavior configuration
type ScannerConfig struct {
	Instruments      []InstrumentConfig        `mapstructure:"instruments"`
	Timeframes       []string                  `mapstructure:"timeframes"`
	FastPeriod       int                       `mapstructure:"ema_fast_period"`
	SlowPeriod       int                       `mapstructure:"ema_slow_period"`
	WaitMinutes      map[string]map[string]int `mapstructure:"wait_minutes"`
	ActiveInterval   time.Duration             `mapstructure:"active_interval"`
	IdleInterval     time.Duration             `mapstructure:"idle_interval"`
	ErrorBackoff     time.Duration             `mapstructure:"error_backoff"`
	MinPrice         float64                   `mapstructure:"min_price"`
	VolumeMultiplier float64                   `mapstructure:"volume_multiplier"`
}

// MarketDataConfig holds Yahoo Finance API configuration
type MarketDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	DBPath    string `mapstructure:"db_path"`
	StatePath string `mapstructure:"state_path"`
	AlertPath string `mapstructure:"alert_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A missing or
// unreadable config file is not an error; the built-in defaults apply so the
// scanner keeps running.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("TRENDSCAN")
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: config file %s not usable, falling back to built-in defaults: %v", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Scanner defaults
	v.SetDefault("scanner.instruments", []map[string]interface{}{
		{"symbol": "GC=F", "name": "Gold"},
		{"symbol": "SI=F", "name": "Silver"},
		{"symbol": "NG=F", "name": "Natural Gas"},
		{"symbol": "CL=F", "name": "Crude Oil"},
	})
	v.SetDefault("scanner.timeframes", []string{"5m", "15m", "30m", "1h"})
	v.SetDefault("scanner.ema_fast_period", 9)
	v.SetDefault("scanner.ema_slow_period", 21)
	v.SetDefault("scanner.wait_minutes", map[string]map[string]int{
		"5m":  {"15m": 10},
		"15m": {"30m": 15},
		"30m": {"1h": 30},
	})
	v.SetDefault("scanner.active_interval", "5m")
	v.SetDefault("scanner.idle_interval", "30m")
	v.SetDefault("scanner.error_backoff", "1m")
	v.SetDefault("scanner.min_price", 0.0) // 0 = no filter
	v.SetDefault("scanner.volume_multiplier", 1.5)

	// Market data defaults
	v.SetDefault("marketdata.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("marketdata.timeout", "30s")
	v.SetDefault("marketdata.max_retries", 3)
	v.SetDefault("marketdata.retry_delay_base", "2s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.db_path", "./data/trendscan.db")
	v.SetDefault("storage.state_path", "./data/trend_state.json")
	v.SetDefault("storage.alert_path", "./data/alert_history.json")
	v.SetDefault("storage.max_alerts", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Scanner config
	if len(c.Scanner.Instruments) == 0 {
		return fmt.Errorf("scanner.instruments must contain at least one instrument")
	}
	for _, inst := range c.Scanner.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("scanner.instruments entries require a symbol")
		}
	}
	if len(c.Scanner.Timeframes) == 0 {
		return fmt.Errorf("scanner.timeframes must contain at least one timeframe")
	}
	if c.Scanner.FastPeriod < 1 {
		return fmt.Errorf("scanner.ema_fast_period must be at least 1")
	}
	if c.Scanner.SlowPeriod <= c.Scanner.FastPeriod {
		return fmt.Errorf("scanner.ema_slow_period must be greater than ema_fast_period")
	}
	if c.Scanner.ActiveInterval < 10*time.Second {
		return fmt.Errorf("scanner.active_interval must be at least 10 seconds")
	}
	if c.Scanner.IdleInterval < c.Scanner.ActiveInterval {
		return fmt.Errorf("scanner.idle_interval must not be shorter than active_interval")
	}
	if c.Scanner.ErrorBackoff < time.Second {
		return fmt.Errorf("scanner.error_backoff must be at least 1 second")
	}
	if c.Scanner.MinPrice < 0 {
		return fmt.Errorf("scanner.min_price must not be negative")
	}
	if c.Scanner.VolumeMultiplier <= 0 {
		return fmt.Errorf("scanner.volume_multiplier must be positive")
	}

	// Validate MarketData config
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("marketdata.base_url is required")
	}
	if c.MarketData.Timeout < time.Second {
		return fmt.Errorf("marketdata.timeout must be at least 1 second")
	}
	if c.MarketData.MaxRetries < 1 {
		return fmt.Errorf("marketdata.max_retries must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	case "json":
		if c.Storage.StatePath == "" || c.Storage.AlertPath == "" {
			return fmt.Errorf("storage.state_path and storage.alert_path are required for the json backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: sqlite, json")
	}
	if c.Storage.MaxAlerts < 0 {
		return fmt.Errorf("storage.max_alerts must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Instruments converts the configured instruments to model values.
func (c *Config) Instruments() []models.Instrument {
	out := make([]models.Instrument, len(c.Scanner.Instruments))
	for i, inst := range c.Scanner.Instruments {
		out[i] = models.Instrument{Symbol: inst.Symbol, Name: inst.Name}
	}
	return out
}

// Timeframes returns the escalation sequence, lowest first.
func (c *Config) Timeframes() []models.Timeframe {
	out := make([]models.Timeframe, len(c.Scanner.Timeframes))
	for i, tf := range c.Scanner.Timeframes {
		out[i] = models.Timeframe(tf)
	}
	return out
}

// Waits converts the configured wait matrix to policy form.
func (c *Config) Waits() policy.WaitMatrix {
	out := make(policy.WaitMatrix, len(c.Scanner.WaitMinutes))
	for from, row := range c.Scanner.WaitMinutes {
		inner := make(map[models.Timeframe]int, len(row))
		for to, minutes := range row {
			inner[models.Timeframe(to)] = minutes
		}
		out[models.Timeframe(from)] = inner
	}
	return out
}
