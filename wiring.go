package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FrenchMajesty/chat-widget/chat_widget"
	"github.com/FrenchMajesty/chat-widget/clients/chat"
	"github.com/FrenchMajesty/chat-widget/config"
	"github.com/FrenchMajesty/chat-widget/rate_limit"
	"github.com/FrenchMajesty/chat-widget/rate_limit/backends/memory"
	"github.com/FrenchMajesty/chat-widget/rate_limit/backends/redis"
	"github.com/FrenchMajesty/chat-widget/server"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/FrenchMajesty/chat-widget/utils/token_counter"
)

// newLogger logs to stdout, and in dev or testing also to a fresh log file.
func newLogger(cfg config.Config) logger.Logger {
	var stdout logger.Logger = logger.NewStdoutLogger()
	if cfg.Log.NoColor {
		stdout = logger.NewStdoutLoggerNoColor()
	}

	fileLogger := prepareFileLogger(cfg)
	if fileLogger == nil {
		return stdout
	}
	return logger.NewMultiLogger(stdout, fileLogger)
}

func prepareFileLogger(cfg config.Config) logger.Logger {
	if !cfg.IsDev() || cfg.Log.File == "" {
		return nil
	}

	path := cfg.Log.File
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	// Delete old log file if it exists
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}

	fileLogger, err := logger.NewFileLogger(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "file logging disabled: %v\n", err)
		return nil
	}
	return fileLogger
}

func newTokenCounter(l logger.Logger) token_counter.TokenCounterInterface {
	counter, err := token_counter.NewTokenCounter()
	if err != nil {
		l.Errorf("[main] token counting disabled: %v", err)
		return nil
	}
	return counter
}

func newChatClient(cfg config.Config, l logger.Logger) chat.Client {
	if cfg.Transport.Kind == config.TransportOpenAI {
		return chat.NewOpenAIClient(chat.OpenAIClientOptions{
			APIKey:       cfg.Transport.OpenAI.APIKey,
			BaseURL:      cfg.Transport.OpenAI.BaseURL,
			Model:        cfg.Transport.OpenAI.Model,
			SystemPrompt: cfg.Transport.OpenAI.SystemPrompt,
			Logger:       l,
		})
	}

	return chat.NewHTTPStreamClient(chat.HTTPStreamClientOptions{
		Endpoint: cfg.Transport.APIURL,
		Headers:  cfg.Transport.Headers,
		Logger:   l,
	})
}

func newWidget(cfg config.Config, client chat.Client, counter token_counter.TokenCounterInterface, l logger.Logger) (*chat_widget.Widget, error) {
	rateLimit := cfg.RateLimit
	return chat_widget.New(chat_widget.Options{
		Client:          client,
		Lang:            cfg.Lang,
		Labels:          cfg.Labels,
		Greeting:        cfg.Greeting,
		RateLimit:       &rateLimit,
		HideSuggestions: cfg.HideSuggestions,
		RequestTimeout:  cfg.RequestTimeout,
		Logger:          l,
		TokenCounter:    counter,
	})
}

func newLimiter(ctx context.Context, cfg config.Config, l logger.Logger) (*rate_limit.Limiter, error) {
	switch cfg.MockAPI.Backend {
	case config.BackendRedis:
		backend := redis.NewBackend(cfg.MockAPI.RedisAddr, cfg.MockAPI.Budget)
		if err := backend.Ping(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.MockAPI.RedisAddr, err)
		}
		l.Printf("[main] mock API budgets stored in redis at %s", cfg.MockAPI.RedisAddr)
		return rate_limit.NewLimiter(backend, l), nil
	default:
		return rate_limit.NewLimiter(memory.NewBackend(cfg.MockAPI.Budget), l), nil
	}
}

func newMockAPI(cfg config.Config, limiter *rate_limit.Limiter, counter token_counter.TokenCounterInterface, metrics *server.Metrics, l logger.Logger) *server.MockAPI {
	var burst *server.BurstLimiter
	if cfg.MockAPI.BurstEvery > 0 {
		burst = server.NewBurstLimiter(cfg.MockAPI.BurstEvery, cfg.MockAPI.BurstSize)
	}

	return server.NewMockAPI(server.MockAPIOptions{
		Limiter:      limiter,
		Burst:        burst,
		TokenCounter: counter,
		ChunkDelay:   cfg.MockAPI.ChunkDelay,
		Metrics:      metrics,
		Logger:       l,
	})
}
