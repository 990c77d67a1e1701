package rate_limit

import (
	"context"
	"time"
)

// Backend defines the interface for rate limit persistence backends.
// Implementations can use different mechanisms (Redis, in-memory, etc.)
// to track and enforce per-client budgets across single or multiple processes.
type Backend interface {
	// BudgetAvailable returns the available token and request budget for the given client key
	// for the current time window (one minute).
	BudgetAvailable(ctx context.Context, key string) (tokensAvailable int, requestsAvailable int, err error)

	// RecordConsumption records token and request usage for the given client key.
	RecordConsumption(ctx context.Context, key string, tokens int, requests int) error

	// TimeUntilReset returns the duration until the next budget reset (next minute boundary).
	TimeUntilReset() time.Duration

	// SetBudgetForTests allows overriding the per-client limits for testing purposes.
	SetBudgetForTests(limit RateLimit) error

	// Close cleans up any resources held by the backend (connections, files, etc.)
	Close() error
}

// TimeUntilNextMinute is the window reset shared by the minute based backends.
func TimeUntilNextMinute(now time.Time) time.Duration {
	nextMinute := now.Truncate(time.Minute).Add(time.Minute)
	return nextMinute.Sub(now)
}
