// Package config provides configuration management for the options analyzer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
	Market     MarketConfig     `mapstructure:"market"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	MonteCarlo MonteCarloConfig `mapstructure:"montecarlo"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Workers    WorkersConfig    `mapstructure:"workers"`
}

// StoreConfig holds the snapshot database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MarketConfig holds market-data conventions.
type MarketConfig struct {
	Timezone  string `mapstructure:"timezone"`
	CloseHour string `mapstructure:"close_hour"` // hour bucket that stands for the session close
	RateProxy string `mapstructure:"rate_proxy"`
}

// AnalyticsConfig holds analytics defaults.
type AnalyticsConfig struct {
	TargetDTE     int     `mapstructure:"target_dte"`
	DeltaTarget   float64 `mapstructure:"delta_target"`
	Smoothing     string  `mapstructure:"smoothing"` // interpolate, savgol, none
	SurfaceGrid   int     `mapstructure:"surface_grid"`
	TradingDays   int     `mapstructure:"trading_days"`
	SymmetricOI   bool    `mapstructure:"symmetric_oi"`
	SingleSpotVEX bool    `mapstructure:"single_spot_vex"`
}

// MonteCarloConfig holds simulation defaults.
type MonteCarloConfig struct {
	Simulations int   `mapstructure:"simulations"`
	Seed        int64 `mapstructure:"seed"`
}

// RetryConfig holds retry settings for market-data lookups.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// WorkersConfig holds worker pool settings.
type WorkersConfig struct {
	Count int `mapstructure:"count"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-analyzer"
	}
	return filepath.Join(home, ".config", "options-analyzer")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths(configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths(DefaultConfigDir())
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("market.timezone", "Etc/GMT-1")
	v.SetDefault("market.close_hour", "21_59")
	v.SetDefault("market.rate_proxy", "^IRX")
	v.SetDefault("analytics.target_dte", 30)
	v.SetDefault("analytics.delta_target", 0.25)
	v.SetDefault("analytics.smoothing", "interpolate")
	v.SetDefault("analytics.surface_grid", 50)
	v.SetDefault("analytics.trading_days", 252)
	v.SetDefault("analytics.symmetric_oi", false)
	v.SetDefault("analytics.single_spot_vex", false)
	v.SetDefault("montecarlo.simulations", 1000)
	v.SetDefault("montecarlo.seed", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("workers.count", 4)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		// First run: write the template and continue on defaults.
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTANALYZER_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("OPTANALYZER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OPTANALYZER_TIMEZONE"); v != "" {
		cfg.Market.Timezone = v
	}
	if v := os.Getenv("OPTANALYZER_SIMULATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MonteCarlo.Simulations = n
		}
	}
}

func (c *Config) resolvePaths(configDir string) {
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(configDir, "snapshots.db")
	}
	if c.Log.FilePath == "" {
		c.Log.FilePath = filepath.Join(configDir, "logs", "analyzer.log")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", c.Market.Timezone, err)
	}

	switch strings.ToLower(c.Analytics.Smoothing) {
	case "interpolate", "savgol", "none", "":
	default:
		return fmt.Errorf("invalid smoothing: %s (must be 'interpolate', 'savgol' or 'none')", c.Analytics.Smoothing)
	}

	if c.Analytics.TargetDTE <= 0 {
		return fmt.Errorf("target_dte must be positive")
	}
	if c.Analytics.DeltaTarget <= 0 || c.Analytics.DeltaTarget >= 1 {
		return fmt.Errorf("delta_target must be between 0 and 1")
	}
	if c.Analytics.SurfaceGrid < 2 {
		return fmt.Errorf("surface_grid must be at least 2")
	}
	if c.Analytics.TradingDays <= 0 {
		return fmt.Errorf("trading_days must be positive")
	}

	if c.MonteCarlo.Simulations <= 0 {
		return fmt.Errorf("montecarlo simulations must be positive")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers count must be at least 1")
	}

	return nil
}

// Location returns the configured market timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Market.Timezone)
}
