package retry

import (
	"reflect"
	"sync"
	"time"

	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
)

// Controller drives the countdown and auto retry for rate limit failures.
// It is safe for concurrent use; callbacks are invoked without the internal lock held.
type Controller struct {
	mu sync.Mutex

	config        Config
	onRetry       func()
	onStateChange func(State)
	scheduler     Scheduler
	random        func() float64
	logger        logger.Logger

	state     State
	prevCause error
	// generation identifies the current episode. Timer callbacks carry the generation they were
	// scheduled for and do nothing once it has moved on.
	generation uint64
	tickTimer  Timer
	retryTimer Timer
	closed     bool
}

func NewController(opts Options) *Controller {
	c := &Controller{
		config:        opts.Config.withDefaults(),
		onRetry:       opts.OnRetry,
		onStateChange: opts.OnStateChange,
		scheduler:     opts.Scheduler,
		random:        opts.Random,
		logger:        logger.OrNoop(opts.Logger),
	}

	if c.onRetry == nil {
		c.onRetry = func() {}
	}
	if c.scheduler == nil {
		c.scheduler = RealScheduler{}
	}

	return c
}

// Config returns the effective configuration after defaults were applied.
func (c *Controller) Config() Config {
	return c.config
}

// State returns the current countdown, auto retry flag and attempt.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnClassification reports the widget's current failure. Pass nil when there is no failure.
// Reporting the same cause again is a no-op.
func (c *Controller) OnClassification(classification *error_classifier.Classification) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	var cause error
	if classification != nil {
		cause = classification.Cause
	}

	if classification == nil || classification.Kind != error_classifier.ErrorKindRateLimit {
		before := c.state
		if c.prevCause != nil {
			c.stopTimersLocked()
			c.state = State{}
		}
		c.prevCause = cause
		after := c.state
		c.mu.Unlock()

		if before != after {
			c.logger.Printf("[retry] rate limit episode cleared after attempt %d", before.Attempt)
			c.notify(after)
		}
		return
	}

	if sameCause(cause, c.prevCause) {
		c.mu.Unlock()
		return
	}
	c.prevCause = cause

	c.state.Attempt++
	delay := CalculateBackoffDelay(
		c.state.Attempt,
		c.config.BaseDelay,
		c.config.MaxDelay,
		classification.RetryAfter(),
		c.random,
	)
	c.startCountdownLocked(delay)
	state := c.state
	c.mu.Unlock()

	c.logger.Printf("[retry] rate limited (attempt %d), waiting %v, auto retry armed: %t", state.Attempt, delay, state.IsAutoRetrying)
	c.notify(state)
}

// CancelAutoRetry stops the countdown and any pending auto retry. The attempt count is kept.
// It returns the state observed just before and just after the cancellation.
func (c *Controller) CancelAutoRetry() (before, after State) {
	c.mu.Lock()
	before = c.state
	c.stopTimersLocked()
	c.state.CountdownSeconds = 0
	c.state.IsAutoRetrying = false
	after = c.state
	c.mu.Unlock()

	if before != after {
		c.logger.Printf("[retry] auto retry cancelled at attempt %d", after.Attempt)
		c.notify(after)
	}
	return before, after
}

// ManualRetry resets the controller and invokes the retry callback exactly once.
func (c *Controller) ManualRetry() {
	c.Reset()
	c.mu.Lock()
	onRetry := c.onRetry
	c.mu.Unlock()

	onRetry()
}

// Reset ends the current episode without invoking the retry callback. Pending timers are
// invalidated, so an expiry that has not yet taken the lock will not retry.
func (c *Controller) Reset() (before State) {
	c.mu.Lock()
	before = c.state
	c.stopTimersLocked()
	c.state = State{}
	c.mu.Unlock()

	if before != (State{}) {
		c.notify(State{})
	}
	return before
}

// Close stops all timers. Later classifications and timer firings are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.stopTimersLocked()
}

func (c *Controller) startCountdownLocked(delay time.Duration) {
	c.stopTimersLocked()
	generation := c.generation

	armed := c.config.AutoRetry && c.state.Attempt <= c.config.MaxRetries
	c.state.CountdownSeconds = CountdownSeconds(delay)
	c.state.IsAutoRetrying = armed

	if c.state.CountdownSeconds > 0 {
		c.tickTimer = c.scheduler.AfterFunc(time.Second, func() { c.tick(generation) })
	}
	if armed {
		c.retryTimer = c.scheduler.AfterFunc(delay, func() { c.expire(generation) })
	}
}

func (c *Controller) tick(generation uint64) {
	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}

	if c.state.CountdownSeconds > 0 {
		c.state.CountdownSeconds--
	}
	if c.state.CountdownSeconds > 0 {
		c.tickTimer = c.scheduler.AfterFunc(time.Second, func() { c.tick(generation) })
	} else {
		c.tickTimer = nil
	}
	state := c.state
	c.mu.Unlock()

	c.notify(state)
}

func (c *Controller) expire(generation uint64) {
	c.mu.Lock()
	if c.closed || generation != c.generation {
		c.mu.Unlock()
		return
	}

	c.stopTimersLocked()
	c.state.CountdownSeconds = 0
	c.state.IsAutoRetrying = false
	state := c.state
	onRetry := c.onRetry
	c.mu.Unlock()

	c.logger.Printf("[retry] auto retrying (attempt %d)", state.Attempt)
	c.notify(state)
	onRetry()
}

// stopTimersLocked invalidates the current episode's callbacks and stops their timers.
func (c *Controller) stopTimersLocked() {
	c.generation++
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Controller) notify(state State) {
	if c.onStateChange != nil {
		c.onStateChange(state)
	}
}

// sameCause compares failures by identity. Values of uncomparable dynamic types are
// always treated as distinct.
func sameCause(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
