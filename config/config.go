package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bcdannyboy/optrisk/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

type Config struct {
	// Server settings
	Port string

	// Tradier API settings
	TradierToken   string
	TradierBaseURL string
	RateLimitDelay time.Duration

	// Risk-free rate: Treasury lookup with a fixed fallback
	RiskFreeRate float64
	UseTreasury  bool
	TreasuryURL  string

	// Sizing defaults
	AccountSize  float64
	RiskFraction float64

	// Data fetch settings
	MaxExpirations      int
	HistoryLookbackDays int
	Watchlist           []string
	TemplatesFile       string

	Logging LoggingConfig `yaml:"logging"`
}

type YAMLConfig struct {
	Tradier struct {
		Token            string `yaml:"token"`
		BaseURL          string `yaml:"base_url"`
		RateLimitDelayMS int    `yaml:"rate_limit_delay_ms"`
	} `yaml:"tradier"`

	Risk struct {
		RiskFreeRate float64 `yaml:"risk_free_rate"`
		UseTreasury  *bool   `yaml:"use_treasury"`
		AccountSize  float64 `yaml:"account_size"`
		RiskFraction float64 `yaml:"risk_fraction"`
	} `yaml:"risk"`

	Data struct {
		MaxExpirations      int      `yaml:"max_expirations"`
		HistoryLookbackDays int      `yaml:"history_lookback_days"`
		Watchlist           []string `yaml:"watchlist"`
		TemplatesFile       string   `yaml:"templates_file"`
	} `yaml:"data"`

	Port    string        `yaml:"port"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads .env, then the environment, then config.yaml (or the file named
// by CONFIG_FILE) on top.
func Load() *Config {
	return LoadFrom(getEnv("CONFIG_FILE", "config.yaml"))
}

// LoadFrom is Load with an explicit YAML path. Variables already set in the
// environment win over .env.
func LoadFrom(yamlPath string) *Config {
	_ = godotenv.Load()
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		TradierToken:        getEnv("TRADIER_KEY", ""),
		TradierBaseURL:      getEnv("TRADIER_BASE_URL", "https://api.tradier.com/v1"),
		RateLimitDelay:      time.Duration(getEnvInt("RATE_LIMIT_DELAY_MS", 1000)) * time.Millisecond,
		RiskFreeRate:        getEnvFloat("RISK_FREE_RATE", 0.05),
		UseTreasury:         getEnvBool("USE_TREASURY", true),
		TreasuryURL:         getEnv("TREASURY_URL", "https://api.fiscaldata.treasury.gov/services/api/fiscal_service/v2/accounting/od/avg_interest_rates"),
		AccountSize:         getEnvFloat("ACCOUNT_SIZE", 100000),
		RiskFraction:        getEnvFloat("RISK_FRACTION", 0.01),
		MaxExpirations:      getEnvInt("MAX_EXPIRATIONS", 6),
		HistoryLookbackDays: getEnvInt("HISTORY_LOOKBACK_DAYS", 252),
		Watchlist:           getEnvStringSlice("WATCHLIST", []string{}),
		TemplatesFile:       getEnv("TEMPLATES_FILE", ""),
		Logging: LoggingConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
			LogFile:  getEnv("LOG_FILE", "optrisk.log"),
		},
	}

	if yamlCfg := loadYAMLConfig(yamlPath); yamlCfg != nil {
		if yamlCfg.Tradier.Token != "" && yamlCfg.Tradier.Token != "YOUR_TRADIER_TOKEN" {
			cfg.TradierToken = yamlCfg.Tradier.Token
		}
		if yamlCfg.Tradier.BaseURL != "" {
			cfg.TradierBaseURL = yamlCfg.Tradier.BaseURL
		}
		if yamlCfg.Tradier.RateLimitDelayMS > 0 {
			cfg.RateLimitDelay = time.Duration(yamlCfg.Tradier.RateLimitDelayMS) * time.Millisecond
		}

		if yamlCfg.Risk.RiskFreeRate > 0 {
			cfg.RiskFreeRate = yamlCfg.Risk.RiskFreeRate
		}
		if yamlCfg.Risk.UseTreasury != nil {
			cfg.UseTreasury = *yamlCfg.Risk.UseTreasury
		}
		if yamlCfg.Risk.AccountSize > 0 {
			cfg.AccountSize = yamlCfg.Risk.AccountSize
		}
		if yamlCfg.Risk.RiskFraction > 0 {
			cfg.RiskFraction = yamlCfg.Risk.RiskFraction
		}

		if yamlCfg.Data.MaxExpirations > 0 {
			cfg.MaxExpirations = yamlCfg.Data.MaxExpirations
		}
		if yamlCfg.Data.HistoryLookbackDays > 0 {
			cfg.HistoryLookbackDays = yamlCfg.Data.HistoryLookbackDays
		}
		if len(yamlCfg.Data.Watchlist) > 0 {
			cfg.Watchlist = yamlCfg.Data.Watchlist
		}
		if yamlCfg.Data.TemplatesFile != "" {
			cfg.TemplatesFile = yamlCfg.Data.TemplatesFile
		}

		if yamlCfg.Port != "" {
			cfg.Port = yamlCfg.Port
		}
		if yamlCfg.Logging.LogLevel != "" {
			cfg.Logging.LogLevel = yamlCfg.Logging.LogLevel
		}
		if yamlCfg.Logging.LogFile != "" {
			cfg.Logging.LogFile = yamlCfg.Logging.LogFile
		}
	}

	return cfg
}

// Validate rejects settings the risk and data code cannot work with.
func (c *Config) Validate() error {
	switch {
	case math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0):
		return fmt.Errorf("risk_free_rate %v: %w", c.RiskFreeRate, models.ErrInvalidParameter)
	case c.AccountSize < 0 || math.IsNaN(c.AccountSize):
		return fmt.Errorf("account_size %v: %w", c.AccountSize, models.ErrInvalidParameter)
	case !(c.RiskFraction > 0 && c.RiskFraction <= 1):
		return fmt.Errorf("risk_fraction %v: %w", c.RiskFraction, models.ErrInvalidParameter)
	case c.MaxExpirations <= 0:
		return fmt.Errorf("max_expirations %d: %w", c.MaxExpirations, models.ErrInvalidParameter)
	case c.HistoryLookbackDays < 2:
		return fmt.Errorf("history_lookback_days %d: %w", c.HistoryLookbackDays, models.ErrInvalidParameter)
	case c.RateLimitDelay < 0:
		return fmt.Errorf("rate_limit_delay %v: %w", c.RateLimitDelay, models.ErrInvalidParameter)
	}
	return nil
}

func loadYAMLConfig(path string) *YAMLConfig {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		// a missing config file is not an error
		return nil
	}

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil
	}

	return &yamlCfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
