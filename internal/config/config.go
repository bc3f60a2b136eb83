// Package config loads engine configuration from a YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the delivery engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the ops HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection for distributed locks.
// When Addr is empty the engine falls back to Postgres advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MailerConfig selects and configures the outbound transport.
type MailerConfig struct {
	Provider  string          `yaml:"provider"` // "smtp" or "sparkpost"
	SMTP      SMTPConfig      `yaml:"smtp"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
}

// SMTPConfig holds SMTP relay credentials.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SparkPostConfig holds SparkPost API credentials.
type SparkPostConfig struct {
	APIKey string `yaml:"api_key"`
}

// DeliveryConfig tunes the send pipeline.
type DeliveryConfig struct {
	BatchSize        int `yaml:"batch_size"`
	Concurrency      int `yaml:"concurrency"`
	SweepSeconds     int `yaml:"sweep_seconds"`
	AggregateSeconds int `yaml:"aggregate_seconds"`
	AggregateBatch   int `yaml:"aggregate_batch"`
}

// SweepInterval returns the campaign sweep interval.
func (d DeliveryConfig) SweepInterval() time.Duration {
	return time.Duration(d.SweepSeconds) * time.Second
}

// AggregateInterval returns the stats aggregation interval.
func (d DeliveryConfig) AggregateInterval() time.Duration {
	return time.Duration(d.AggregateSeconds) * time.Second
}

// TrackingConfig holds the public tracking URL and its signing key.
type TrackingConfig struct {
	BaseURL    string `yaml:"base_url"`
	SigningKey string `yaml:"signing_key"`
	TrackLinks bool   `yaml:"track_links"`
}

// LoggingConfig controls log verbosity and PII handling.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Mailer.SMTP.Port == 0 {
		cfg.Mailer.SMTP.Port = 587
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = 500
	}
	if cfg.Delivery.Concurrency == 0 {
		cfg.Delivery.Concurrency = 4
	}
	if cfg.Delivery.SweepSeconds == 0 {
		cfg.Delivery.SweepSeconds = 60
	}
	if cfg.Delivery.AggregateSeconds == 0 {
		cfg.Delivery.AggregateSeconds = 60
	}
	if cfg.Delivery.AggregateBatch == 0 {
		cfg.Delivery.AggregateBatch = 5000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads the YAML config and overrides secrets and connection
// settings from the environment. A .env file is honored when present, and a
// missing YAML file is not an error: defaults plus environment are enough
// for a container deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if provider := os.Getenv("MAILER_PROVIDER"); provider != "" {
		cfg.Mailer.Provider = provider
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.Mailer.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", port, err)
		}
		cfg.Mailer.SMTP.Port = p
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.Mailer.SMTP.Username = user
	}
	if pw := os.Getenv("SMTP_PASSWORD"); pw != "" {
		cfg.Mailer.SMTP.Password = pw
	}
	if apiKey := os.Getenv("SPARKPOST_API_KEY"); apiKey != "" {
		cfg.Mailer.SparkPost.APIKey = apiKey
	}
	if key := os.Getenv("TRACKING_SIGNING_KEY"); key != "" {
		cfg.Tracking.SigningKey = key
	}
	if base := os.Getenv("TRACKING_BASE_URL"); base != "" {
		cfg.Tracking.BaseURL = base
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, cfg.Validate()
}

// Validate checks settings the engine cannot run without.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database url is required (database.url or DATABASE_URL)")
	}
	if cfg.Tracking.TrackLinks && cfg.Tracking.SigningKey == "" {
		return fmt.Errorf("tracking.signing_key is required when link tracking is enabled")
	}
	switch cfg.Mailer.Provider {
	case "", "smtp", "sparkpost":
	default:
		return fmt.Errorf("unknown mailer provider %q", cfg.Mailer.Provider)
	}
	return nil
}
