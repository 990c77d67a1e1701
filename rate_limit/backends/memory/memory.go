package memory

import (
	"context"
	"sync"
	"time"

	"github.com/FrenchMajesty/chat-widget/rate_limit"
)

// usageData tracks token and request consumption
type usageData struct {
	Tokens   int
	Requests int
}

// Memory is an in-memory rate limit backend for single-process scenarios.
// It tracks budgets locally without any inter-process communication.
type Memory struct {
	state         map[string]usageData
	currentMinute time.Time
	budget        rate_limit.RateLimit
	now           func() time.Time
	mu            sync.Mutex
}

var _ rate_limit.Backend = (*Memory)(nil)

// NewBackend creates a new in-memory rate limit backend with the given per-client budget
func NewBackend(budget rate_limit.RateLimit) *Memory {
	return &Memory{
		state:         make(map[string]usageData),
		currentMinute: time.Now().Truncate(time.Minute),
		budget:        budget,
		now:           time.Now,
	}
}

// BudgetAvailable returns the available token and request budget for the given key
func (m *Memory) BudgetAvailable(_ context.Context, key string) (tokensAvailable int, requestsAvailable int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetMinute()

	usage := m.state[key]
	tokensAvailable = max(m.budget.TPM-usage.Tokens, 0)
	requestsAvailable = max(m.budget.RPM-usage.Requests, 0)

	return tokensAvailable, requestsAvailable, nil
}

// RecordConsumption records token and request usage for the given key
func (m *Memory) RecordConsumption(_ context.Context, key string, tokens int, requests int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkAndResetMinute()

	usage := m.state[key]
	usage.Tokens += tokens
	usage.Requests += requests
	m.state[key] = usage

	return nil
}

// TimeUntilReset returns the duration until the next minute boundary
func (m *Memory) TimeUntilReset() time.Duration {
	return rate_limit.TimeUntilNextMinute(m.now())
}

// SetBudgetForTests sets a custom budget for testing purposes
func (m *Memory) SetBudgetForTests(limit rate_limit.RateLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.budget = limit
	return nil
}

// Close is a no-op for in-memory backend (no resources to clean up)
func (m *Memory) Close() error {
	return nil
}

// checkAndResetMinute resets state if we're in a new minute
// Note: caller must hold the lock
func (m *Memory) checkAndResetMinute() {
	currentMinute := m.now().Truncate(time.Minute)
	if !m.currentMinute.Equal(currentMinute) {
		m.currentMinute = currentMinute
		m.state = make(map[string]usageData)
	}
}
