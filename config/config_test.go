package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FrenchMajesty/chat-widget/rate_limit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat_widget.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, TransportHTTP, cfg.Transport.Kind)
	assert.Equal(t, BackendMemory, cfg.MockAPI.Backend)
	assert.Equal(t, rate_limit.ChatAPIRateLimit, cfg.MockAPI.Budget)
	assert.False(t, cfg.RateLimit.AutoRetry)
	assert.Equal(t, 3, cfg.RateLimit.MaxRetries)
	assert.False(t, cfg.IsDev())
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
env: dev
lang: es
greeting: "¡Hola!"
request_timeout: 45s
rate_limit:
  auto_retry: true
  max_retries: 5
  base_delay: 2s
  max_delay: 1m
labels:
  retry: "Otra vez"
transport:
  kind: http
  api_url: https://example.com/api/chat
  headers:
    X-Widget: docs
mock_api:
  enabled: false
  budget:
    rpm: 2
    tpm: 500
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "es", cfg.Lang)
	assert.Equal(t, "¡Hola!", cfg.Greeting)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.RateLimit.AutoRetry)
	assert.Equal(t, 5, cfg.RateLimit.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.BaseDelay)
	assert.Equal(t, time.Minute, cfg.RateLimit.MaxDelay)
	assert.Equal(t, "Otra vez", cfg.Labels.Retry)
	assert.Equal(t, "https://example.com/api/chat", cfg.Transport.APIURL)
	assert.Equal(t, map[string]string{"X-Widget": "docs"}, cfg.Transport.Headers)
	assert.False(t, cfg.MockAPI.Enabled)
	assert.Equal(t, rate_limit.RateLimit{RPM: 2, TPM: 500}, cfg.MockAPI.Budget)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.MockAPI.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "testing")
	t.Setenv("CHAT_WIDGET_LANG", "es-MX")
	t.Setenv("CHAT_WIDGET_TRANSPORT", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CHAT_WIDGET_REDIS_ADDR", "localhost:6379")
	t.Setenv("CHAT_WIDGET_ADDR", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "testing", cfg.Env)
	assert.Equal(t, "es-MX", cfg.Lang)
	assert.Equal(t, TransportOpenAI, cfg.Transport.Kind)
	assert.Equal(t, "sk-test", cfg.Transport.OpenAI.APIKey)
	assert.Equal(t, BackendRedis, cfg.MockAPI.Backend)
	assert.Equal(t, "localhost:6379", cfg.MockAPI.RedisAddr)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "rate_limit: [not, a, map"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "transport:\n  kind: carrier-pigeon\n"))
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"default", func(*Config) {}, nil},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "grpc" }, ErrUnknownTransport},
		{"missing api url", func(c *Config) { c.Transport.APIURL = "  " }, ErrMissingAPIURL},
		{"openai without key", func(c *Config) { c.Transport.Kind = TransportOpenAI }, ErrMissingAPIKey},
		{"openai with key", func(c *Config) {
			c.Transport.Kind = TransportOpenAI
			c.Transport.OpenAI.APIKey = "sk-test"
		}, nil},
		{"unknown backend", func(c *Config) { c.MockAPI.Backend = "etcd" }, ErrUnknownBackend},
		{"redis without addr", func(c *Config) { c.MockAPI.Backend = BackendRedis }, ErrUnknownBackend},
		{"redis with addr", func(c *Config) {
			c.MockAPI.Backend = BackendRedis
			c.MockAPI.RedisAddr = "localhost:6379"
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	cfg := Default()
	cfg.RateLimit.MaxRetries = -1
	assert.Error(t, cfg.Validate())
}
