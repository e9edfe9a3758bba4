package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginThrottle is a token bucket per username.
type loginThrottle struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*throttleBucket
}

type throttleBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLoginThrottle(perSecond float64, burst int, now func() time.Time) *loginThrottle {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &loginThrottle{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     5 * time.Minute,
		now:     now,
		buckets: make(map[string]*throttleBucket),
	}
}

// allow consumes one attempt for username.
func (t *loginThrottle) allow(username string) bool {
	if t == nil {
		return true
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked(now)
	b, ok := t.buckets[username]
	if !ok {
		b = &throttleBucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[username] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (t *loginThrottle) sweepLocked(now time.Time) {
	for k, b := range t.buckets {
		if now.Sub(b.seen) > t.ttl {
			delete(t.buckets, k)
		}
	}
}
