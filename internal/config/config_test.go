package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

database:
  url: "postgres://localhost/engine?sslmode=disable"
  max_open_conns: 10

mailer:
  provider: "sparkpost"
  sparkpost:
    api_key: "test-api-key"

delivery:
  batch_size: 250
  concurrency: 8
  sweep_seconds: 30

tracking:
  base_url: "https://track.example.com"
  signing_key: "secret"
  track_links: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/engine?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "sparkpost", cfg.Mailer.Provider)
	assert.Equal(t, "test-api-key", cfg.Mailer.SparkPost.APIKey)
	assert.Equal(t, 250, cfg.Delivery.BatchSize)
	assert.Equal(t, 8, cfg.Delivery.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Delivery.SweepInterval())
	assert.True(t, cfg.Tracking.TrackLinks)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/engine"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Delivery.BatchSize)
	assert.Equal(t, 4, cfg.Delivery.Concurrency)
	assert.Equal(t, time.Minute, cfg.Delivery.SweepInterval())
	assert.Equal(t, time.Minute, cfg.Delivery.AggregateInterval())
	assert.Equal(t, 5000, cfg.Delivery.AggregateBatch)
	assert.Equal(t, 587, cfg.Mailer.SMTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file/engine"
mailer:
  provider: "smtp"
  smtp:
    host: "mail.file.example"
`)

	t.Setenv("DATABASE_URL", "postgres://env/engine")
	t.Setenv("SMTP_HOST", "mail.env.example")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/engine", cfg.Database.URL)
	assert.Equal(t, "mail.env.example", cfg.Mailer.SMTP.Host)
	assert.Equal(t, 2525, cfg.Mailer.SMTP.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvMissingFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/engine")

	cfg, err := LoadFromEnv("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/engine", cfg.Database.URL)
	assert.Equal(t, 500, cfg.Delivery.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	assert.Error(t, cfg.Validate(), "missing database url")

	cfg.Database.URL = "postgres://localhost/engine"
	assert.NoError(t, cfg.Validate())

	cfg.Tracking.TrackLinks = true
	assert.Error(t, cfg.Validate(), "tracking without signing key")

	cfg.Tracking.SigningKey = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Mailer.Provider = "pigeon"
	assert.Error(t, cfg.Validate(), "unknown provider")
}
