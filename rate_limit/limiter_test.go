package rate_limit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FrenchMajesty/chat-widget/rate_limit"
	"github.com/FrenchMajesty/chat-widget/rate_limit/backends/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	rate_limit.Backend
	readErr   error
	recordErr error
}

func (f *failingBackend) BudgetAvailable(context.Context, string) (int, int, error) {
	if f.readErr != nil {
		return 0, 0, f.readErr
	}
	return 100, 10, nil
}

func (f *failingBackend) RecordConsumption(context.Context, string, int, int) error {
	return f.recordErr
}

func TestLimiter_AdmitsUntilRequestsExhausted(t *testing.T) {
	ctx := context.Background()
	limiter := rate_limit.NewLimiter(memory.NewBackend(rate_limit.RateLimit{RPM: 2, TPM: 1000}), nil)
	defer limiter.Close()

	first, err := limiter.Reserve(ctx, "alice", 100)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.RequestsRemaining)
	assert.Equal(t, 900, first.TokensRemaining)

	second, err := limiter.Reserve(ctx, "alice", 100)
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.Reserve(ctx, "alice", 100)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, 0, third.RequestsRemaining)
	assert.Greater(t, third.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, third.RetryAfter, time.Minute)
}

func TestLimiter_DeniesWhenTokensShort(t *testing.T) {
	ctx := context.Background()
	limiter := rate_limit.NewLimiter(memory.NewBackend(rate_limit.RateLimit{RPM: 10, TPM: 50}), nil)

	decision, err := limiter.Reserve(ctx, "alice", 80)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 50, decision.TokensRemaining)
}

func TestLimiter_RecordTokens(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend(rate_limit.RateLimit{RPM: 10, TPM: 100})
	limiter := rate_limit.NewLimiter(backend, nil)

	require.NoError(t, limiter.RecordTokens(ctx, "alice", 70))
	require.NoError(t, limiter.RecordTokens(ctx, "alice", 0))

	tokens, requests, err := backend.BudgetAvailable(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 30, tokens)
	assert.Equal(t, 10, requests)
}

func TestLimiter_BackendErrors(t *testing.T) {
	ctx := context.Background()

	limiter := rate_limit.NewLimiter(&failingBackend{readErr: errors.New("down")}, nil)
	_, err := limiter.Reserve(ctx, "alice", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read budget for alice")

	limiter = rate_limit.NewLimiter(&failingBackend{recordErr: errors.New("down")}, nil)
	_, err = limiter.Reserve(ctx, "alice", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record consumption for alice")
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       int
	}{
		{"zero rounds up to one", 0, 1},
		{"sub second", 200 * time.Millisecond, 1},
		{"exact", 12 * time.Second, 12},
		{"partial", 12*time.Second + time.Millisecond, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rate_limit.Decision{RetryAfter: tt.retryAfter}.RetryAfterSeconds())
		})
	}
}

func TestTimeUntilNextMinute(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 45, 0, time.UTC)
	assert.Equal(t, 15*time.Second, rate_limit.TimeUntilNextMinute(now))
}
