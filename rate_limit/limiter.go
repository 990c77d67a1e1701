package rate_limit

import (
	"context"
	"fmt"
	"time"

	"github.com/FrenchMajesty/chat-widget/utils/logger"
)

// Decision is the outcome of a budget reservation.
type Decision struct {
	Allowed           bool
	RetryAfter        time.Duration
	TokensRemaining   int
	RequestsRemaining int
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one, for the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	seconds := int((d.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter enforces per-client minute budgets on top of a Backend.
// The check and the record are separate backend calls, so concurrent requests for the
// same key may overshoot the budget by the number of racing requests.
type Limiter struct {
	backend Backend
	logger  logger.Logger
}

func NewLimiter(backend Backend, l logger.Logger) *Limiter {
	return &Limiter{
		backend: backend,
		logger:  logger.OrNoop(l),
	}
}

// Reserve admits a request estimated at estimatedTokens and records it, or denies it with the
// time left until the window resets.
func (l *Limiter) Reserve(ctx context.Context, key string, estimatedTokens int) (Decision, error) {
	tokens, requests, err := l.backend.BudgetAvailable(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("read budget for %s: %w", key, err)
	}

	if requests <= 0 || tokens < estimatedTokens {
		retryAfter := l.backend.TimeUntilReset()
		l.logger.Printf("[rate_limit] %s blocked: %d requests and %d tokens left, resets in %v", key, requests, tokens, retryAfter)
		return Decision{
			Allowed:           false,
			RetryAfter:        retryAfter,
			TokensRemaining:   tokens,
			RequestsRemaining: requests,
		}, nil
	}

	if err := l.backend.RecordConsumption(ctx, key, estimatedTokens, 1); err != nil {
		return Decision{}, fmt.Errorf("record consumption for %s: %w", key, err)
	}

	return Decision{
		Allowed:           true,
		TokensRemaining:   tokens - estimatedTokens,
		RequestsRemaining: requests - 1,
	}, nil
}

// RecordTokens adds tokens produced after admission, such as the streamed reply.
func (l *Limiter) RecordTokens(ctx context.Context, key string, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	return l.backend.RecordConsumption(ctx, key, tokens, 0)
}

func (l *Limiter) Close() error {
	return l.backend.Close()
}
