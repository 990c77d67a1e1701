package retry

import (
	"time"

	"github.com/FrenchMajesty/chat-widget/utils/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// Config controls the backoff and auto retry policy.
type Config struct {
	AutoRetry  bool          `yaml:"auto_retry"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// DefaultConfig returns the widget defaults: manual retry only, three attempts, 1s base, 30s cap.
func DefaultConfig() Config {
	return Config{
		AutoRetry:  false,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// withDefaults replaces non-positive delays. MaxRetries is kept as given, so a negative value
// simply never arms.
func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// Options configures a Controller. Nil fields get defaults.
type Options struct {
	Config Config
	// OnRetry re-issues the failed request. It is called without any controller lock held.
	OnRetry func()
	// OnStateChange observes every state transition.
	OnStateChange func(State)
	Scheduler     Scheduler
	// Random returns a uniform value in [0, 1) used for jitter.
	Random func() float64
	Logger logger.Logger
}

// State is what the widget renders.
type State struct {
	CountdownSeconds int  `json:"countdownSeconds"`
	IsAutoRetrying   bool `json:"isAutoRetrying"`
	Attempt          int  `json:"attempt"`
}
