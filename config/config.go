// Package config loads the chat widget settings from a YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/FrenchMajesty/chat-widget/i18n"
	"github.com/FrenchMajesty/chat-widget/rate_limit"
	"github.com/FrenchMajesty/chat-widget/utils/retry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportHTTP   = "http"
	TransportOpenAI = "openai"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var (
	ErrUnknownTransport = errors.New("config: unknown transport")
	ErrUnknownBackend   = errors.New("config: unknown rate limit backend")
	ErrMissingAPIURL    = errors.New("config: transport.api_url is required for the http transport")
	ErrMissingAPIKey    = errors.New("config: transport.openai.api_key is required for the openai transport")
)

type Config struct {
	// Env is "dev", "testing" or "production". dev and testing also log to a file.
	Env             string        `yaml:"env"`
	Lang            string        `yaml:"lang"`
	Greeting        string        `yaml:"greeting"`
	HideSuggestions bool          `yaml:"hide_suggestions"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	Labels          i18n.Labels   `yaml:"labels"`
	RateLimit       retry.Config  `yaml:"rate_limit"`
	Transport       Transport     `yaml:"transport"`
	Server          Server        `yaml:"server"`
	MockAPI         MockAPI       `yaml:"mock_api"`
	Log             Log           `yaml:"log"`
}

type Transport struct {
	Kind    string            `yaml:"kind"`
	APIURL  string            `yaml:"api_url"`
	Headers map[string]string `yaml:"headers"`
	OpenAI  OpenAI            `yaml:"openai"`
}

type OpenAI struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type MockAPI struct {
	Enabled    bool                 `yaml:"enabled"`
	Addr       string               `yaml:"addr"`
	ChunkDelay time.Duration        `yaml:"chunk_delay"`
	Backend    string               `yaml:"backend"`
	RedisAddr  string               `yaml:"redis_addr"`
	Budget     rate_limit.RateLimit `yaml:"budget"`
	// BurstEvery and BurstSize configure the per IP token bucket. A zero BurstEvery disables it.
	BurstEvery time.Duration `yaml:"burst_every"`
	BurstSize  int           `yaml:"burst_size"`
}

type Log struct {
	File    string `yaml:"file"`
	NoColor bool   `yaml:"no_color"`
}

// Default returns a config that runs the widget host against the bundled mock API.
func Default() Config {
	return Config{
		Env:       "production",
		Lang:      "en",
		Greeting:  "Hi! How can I help you today?",
		RateLimit: retry.DefaultConfig(),
		Transport: Transport{
			Kind:   TransportHTTP,
			APIURL: "http://localhost:8081/api/chat",
		},
		Server: Server{Addr: ":8080"},
		MockAPI: MockAPI{
			Enabled:    true,
			Addr:       ":8081",
			ChunkDelay: 40 * time.Millisecond,
			Backend:    BackendMemory,
			Budget:     rate_limit.ChatAPIRateLimit,
			BurstEvery: time.Second,
			BurstSize:  3,
		},
		Log: Log{File: "chat_widget.log"},
	}
}

// Load reads the optional .env file, the YAML file at path (skipped when path is empty) and then
// applies environment overrides on top of Default().
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ENV, CHAT_WIDGET_* and OPENAI_API_KEY.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Env, "ENV")
	setFromEnv(&c.Lang, "CHAT_WIDGET_LANG")
	setFromEnv(&c.Transport.Kind, "CHAT_WIDGET_TRANSPORT")
	setFromEnv(&c.Transport.APIURL, "CHAT_WIDGET_API_URL")
	setFromEnv(&c.Transport.OpenAI.APIKey, "OPENAI_API_KEY")
	setFromEnv(&c.Transport.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setFromEnv(&c.Server.Addr, "CHAT_WIDGET_ADDR")

	if addr := os.Getenv("CHAT_WIDGET_REDIS_ADDR"); addr != "" {
		c.MockAPI.Backend = BackendRedis
		c.MockAPI.RedisAddr = addr
	}
}

func (c Config) Validate() error {
	switch c.Transport.Kind {
	case TransportHTTP:
		if strings.TrimSpace(c.Transport.APIURL) == "" {
			return ErrMissingAPIURL
		}
	case TransportOpenAI:
		if c.Transport.OpenAI.APIKey == "" {
			return ErrMissingAPIKey
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport.Kind)
	}

	switch c.MockAPI.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.MockAPI.RedisAddr == "" {
			return fmt.Errorf("%w: redis backend needs mock_api.redis_addr", ErrUnknownBackend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.MockAPI.Backend)
	}

	if c.RateLimit.MaxRetries < 0 {
		return errors.New("config: rate_limit.max_retries must not be negative")
	}
	return nil
}

// IsDev reports whether verbose file logging should be enabled.
func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "testing"
}

func setFromEnv(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}
