package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	CVM      CVMConfig      `yaml:"cvm" envconfig:"CVM"`
	Search   SearchConfig   `yaml:"search" envconfig:"SEARCH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30m"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"5"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/cdacli.log"`
}

// CVMConfig contains the CVM open-data endpoint configuration.
// The defaults point at the CDA (fund portfolio composition) dataset.
type CVMConfig struct {
	BaseURL      string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://dados.cvm.gov.br/dados/FI/DOC/CDA/DADOS/"`
	FilePrefix   string        `yaml:"file_prefix" envconfig:"FILE_PREFIX" default:"cda_fi_"`
	UserAgent    string        `yaml:"user_agent" envconfig:"USER_AGENT" default:"Mozilla/5.0"`
	ListTimeout  time.Duration `yaml:"list_timeout" envconfig:"LIST_TIMEOUT" default:"60s"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT" default:"4m"`
}

// SearchConfig contains scan pipeline tuning.
// MaxWorkers and MaxPeriods are operational ceilings tied to what the CVM
// portal tolerates, not algorithmic limits; requested values above them are
// clamped, not rejected.
type SearchConfig struct {
	MaxWorkers     int `yaml:"max_workers" envconfig:"MAX_WORKERS" default:"6"`
	DefaultWorkers int `yaml:"default_workers" envconfig:"DEFAULT_WORKERS" default:"1"`
	MaxPeriods     int `yaml:"max_periods" envconfig:"MAX_PERIODS" default:"60"`
	DefaultPeriods int `yaml:"default_periods" envconfig:"DEFAULT_PERIODS" default:"1"`
	MaxFieldBytes  int `yaml:"max_field_bytes" envconfig:"MAX_FIELD_BYTES" default:"10000000"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CDA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.CVM.BaseURL == "" {
		envConfig.CVM.BaseURL = fileConfig.CVM.BaseURL
	}
	if envConfig.CVM.FilePrefix == "" {
		envConfig.CVM.FilePrefix = fileConfig.CVM.FilePrefix
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Search.MaxWorkers == 0 {
		envConfig.Search.MaxWorkers = fileConfig.Search.MaxWorkers
	}
	if envConfig.Search.MaxPeriods == 0 {
		envConfig.Search.MaxPeriods = fileConfig.Search.MaxPeriods
	}

	return envConfig
}

func getConfigFilePath() string {
	if path := os.Getenv("CDA_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.CVM.BaseURL == "" {
		return fmt.Errorf("cvm base URL must not be empty")
	}
	if c.Search.MaxWorkers < 1 {
		return fmt.Errorf("search max workers must be at least 1, got %d", c.Search.MaxWorkers)
	}
	if c.Search.MaxPeriods < 1 {
		return fmt.Errorf("search max periods must be at least 1, got %d", c.Search.MaxPeriods)
	}
	if c.Search.MaxFieldBytes < 1024 {
		return fmt.Errorf("search max field bytes too small: %d", c.Search.MaxFieldBytes)
	}
	return nil
}
