package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BurstLimiter is a per client IP token bucket placed in front of the minute budgets.
// Rejections carry the wait in the JSON body ("retry_after") instead of a header.
type BurstLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// NewBurstLimiter allows burst requests at once, refilling one every interval.
func NewBurstLimiter(every time.Duration, burst int) *BurstLimiter {
	return &BurstLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Every(every),
		burst:     max(burst, 1),
		lastSweep: time.Now(),
	}
}

func (b *BurstLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := b.allow(c.ClientIP())
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

func (b *BurstLimiter) allow(key string) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.sweepLocked(now)

	v, ok := b.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.visitors[key] = v
	}
	v.lastSeen = now

	if v.limiter.AllowN(now, 1) {
		return true, 0
	}

	reservation := v.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 60
	}
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)

	seconds := int((delay + time.Second - 1) / time.Second)
	return false, max(seconds, 1)
}

// sweepLocked drops idle visitors at most once per TTL.
func (b *BurstLimiter) sweepLocked(now time.Time) {
	if now.Sub(b.lastSweep) < visitorIdleTTL {
		return
	}
	b.lastSweep = now
	for key, v := range b.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(b.visitors, key)
		}
	}
}

func (b *BurstLimiter) VisitorCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.visitors)
}
