// Package redis provides a fixed-window rate limit backend shared by every process
// that points at the same Redis instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/FrenchMajesty/chat-widget/rate_limit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "chat-widget:ratelimit"
	// keyTTL outlives the window so late writers never recreate an expired counter.
	keyTTL = 2 * time.Minute
)

// Redis keeps per-minute counters under <prefix>:<key>:<minute>:{tokens,requests}.
type Redis struct {
	client *goredis.Client
	prefix string
	budget rate_limit.RateLimit
	now    func() time.Time
	mu     sync.RWMutex
}

var _ rate_limit.Backend = (*Redis)(nil)

// NewBackend connects to addr (host:port).
func NewBackend(addr string, budget rate_limit.RateLimit) *Redis {
	return newBackend(goredis.NewClient(&goredis.Options{Addr: addr}), budget)
}

// NewBackendWithURL connects using a redis:// URL.
func NewBackendWithURL(url string, budget rate_limit.RateLimit) (*Redis, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newBackend(goredis.NewClient(opts), budget), nil
}

func newBackend(client *goredis.Client, budget rate_limit.RateLimit) *Redis {
	return &Redis{
		client: client,
		prefix: DefaultKeyPrefix,
		budget: budget,
		now:    time.Now,
	}
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) windowKeys(key string) (tokensKey, requestsKey string) {
	minute := r.now().Truncate(time.Minute).Unix()
	base := fmt.Sprintf("%s:%s:%d", r.prefix, key, minute)
	return base + ":tokens", base + ":requests"
}

// BudgetAvailable returns the available token and request budget for the given key
func (r *Redis) BudgetAvailable(ctx context.Context, key string) (int, int, error) {
	tokensKey, requestsKey := r.windowKeys(key)

	values, err := r.client.MGet(ctx, tokensKey, requestsKey).Result()
	if err != nil {
		return 0, 0, err
	}

	usedTokens, err := counterValue(values[0])
	if err != nil {
		return 0, 0, err
	}
	usedRequests, err := counterValue(values[1])
	if err != nil {
		return 0, 0, err
	}

	r.mu.RLock()
	budget := r.budget
	r.mu.RUnlock()

	return max(budget.TPM-usedTokens, 0), max(budget.RPM-usedRequests, 0), nil
}

// RecordConsumption increments both counters in one round trip.
func (r *Redis) RecordConsumption(ctx context.Context, key string, tokens int, requests int) error {
	tokensKey, requestsKey := r.windowKeys(key)

	pipe := r.client.TxPipeline()
	pipe.IncrBy(ctx, tokensKey, int64(tokens))
	pipe.Expire(ctx, tokensKey, keyTTL)
	pipe.IncrBy(ctx, requestsKey, int64(requests))
	pipe.Expire(ctx, requestsKey, keyTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// TimeUntilReset returns the duration until the next minute boundary
func (r *Redis) TimeUntilReset() time.Duration {
	return rate_limit.TimeUntilNextMinute(r.now())
}

// SetBudgetForTests sets a custom budget for testing purposes
func (r *Redis) SetBudgetForTests(limit rate_limit.RateLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.budget = limit
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func counterValue(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("corrupt rate limit counter %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, errors.New("unexpected rate limit counter type")
	}
}
