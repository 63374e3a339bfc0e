package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Mailer    MailerConfig    `yaml:"mailer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr" env:"API_LISTEN_ADDR"`
	ReadTimeout  Duration      `yaml:"read_timeout"`
	WriteTimeout Duration      `yaml:"write_timeout"`
}

// StorageConfig contains record store settings
type StorageConfig struct {
	Path string `yaml:"path" env:"STORAGE_PATH"`
}

// MailerConfig contains send backend settings
type MailerConfig struct {
	// Mode selects the delivery path: "simulated" or "smtp"
	Mode string `yaml:"mode" env:"MAILER_MODE"`

	// Per-sender anti-spam envelope
	MaxPerMinute int `yaml:"max_per_minute"`
	MaxPerHour   int `yaml:"max_per_hour"`

	// Simulated path
	LatencyMin         Duration `yaml:"latency_min"`
	LatencyMax         Duration `yaml:"latency_max"`
	SuccessProbability float64       `yaml:"success_probability"`

	// SMTP path
	SendTimeout      Duration   `yaml:"send_timeout"`
	GlobalPerSecond  float64       `yaml:"global_per_second"` // outbound pacing, 0 = unlimited
	DKIM             DKIMConfig    `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings for outgoing messages. Keys
// are registered per sender email domain under one selector.
type DKIMConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Selector string            `yaml:"selector"`
	Domains  map[string]string `yaml:"domains"` // domain -> key file
}

// SchedulerConfig contains runtime scheduler settings
type SchedulerConfig struct {
	CompletionCheckInterval Duration `yaml:"completion_check_interval"`
	DefaultWorkingHours     int           `yaml:"default_working_hours"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // console, json
}

// SecretsConfig contains credential sealing settings
type SecretsConfig struct {
	MasterKey string `yaml:"master_key" env:"SECRETS_MASTER_KEY"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Storage: StorageConfig{
			Path: "./data/email-sender.db",
		},
		Mailer: MailerConfig{
			Mode:               "simulated",
			MaxPerMinute:       30,
			MaxPerHour:         500,
			LatencyMin:         Duration(100 * time.Millisecond),
			LatencyMax:         Duration(1000 * time.Millisecond),
			SuccessProbability: 0.95,
			SendTimeout:        Duration(30 * time.Second),
		},
		Scheduler: SchedulerConfig{
			CompletionCheckInterval: Duration(time.Minute),
			DefaultWorkingHours:     24,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Secrets: SecretsConfig{
			MasterKey: "dev-only-master-key",
		},
	}
}

// Load reads configuration from a YAML file, then overlays environment
// variables. An empty path returns defaults plus the environment overlay.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	switch c.Mailer.Mode {
	case "simulated", "smtp":
	default:
		return fmt.Errorf("mailer.mode must be 'simulated' or 'smtp', got %q", c.Mailer.Mode)
	}

	if c.Mailer.SuccessProbability < 0 || c.Mailer.SuccessProbability > 1 {
		return fmt.Errorf("mailer.success_probability must be in [0, 1], got %v", c.Mailer.SuccessProbability)
	}
	if c.Mailer.LatencyMin < 0 || c.Mailer.LatencyMax < c.Mailer.LatencyMin {
		return fmt.Errorf("mailer latency bounds are invalid: min=%v max=%v", c.Mailer.LatencyMin, c.Mailer.LatencyMax)
	}
	if c.Mailer.MaxPerMinute <= 0 || c.Mailer.MaxPerHour <= 0 {
		return fmt.Errorf("mailer rate limits must be positive")
	}

	if c.Scheduler.CompletionCheckInterval <= 0 {
		return fmt.Errorf("scheduler.completion_check_interval must be positive")
	}
	if c.Scheduler.DefaultWorkingHours < 1 || c.Scheduler.DefaultWorkingHours > 24 {
		return fmt.Errorf("scheduler.default_working_hours must be in 1..24, got %d", c.Scheduler.DefaultWorkingHours)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json'")
	}

	if c.Mailer.DKIM.Enabled {
		if c.Mailer.DKIM.Selector == "" || len(c.Mailer.DKIM.Domains) == 0 {
			return fmt.Errorf("mailer.dkim requires selector and at least one domain key when enabled")
		}
		for domain, keyFile := range c.Mailer.DKIM.Domains {
			if keyFile == "" {
				return fmt.Errorf("mailer.dkim.domains[%s] has no key file", domain)
			}
		}
	}

	if c.Secrets.MasterKey == "" {
		return fmt.Errorf("secrets.master_key is required")
	}

	return nil
}
