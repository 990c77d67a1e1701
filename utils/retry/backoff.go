package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

const jitterFactor = 0.25

// CalculateBackoffDelay returns the wait before the given attempt (1-based).
// A positive serverRetryAfterSeconds takes precedence over the exponential computation.
// The result never exceeds maxDelay.
func CalculateBackoffDelay(attempt int, baseDelay, maxDelay time.Duration, serverRetryAfterSeconds int, random func() float64) time.Duration {
	if serverRetryAfterSeconds > 0 {
		hinted := float64(serverRetryAfterSeconds) * float64(time.Second)
		if hinted >= float64(maxDelay) {
			return maxDelay
		}
		return time.Duration(hinted)
	}

	if attempt < 1 {
		attempt = 1
	}
	if random == nil {
		random = rand.Float64
	}

	exponential := float64(baseDelay) * math.Pow(2, float64(attempt-1))
	jitter := exponential * jitterFactor * random()

	total := exponential + jitter
	if total >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(total)
}

// CountdownSeconds rounds a delay up to whole seconds for display.
func CountdownSeconds(delay time.Duration) int {
	if delay <= 0 {
		return 0
	}
	return int((delay + time.Second - 1) / time.Second)
}
