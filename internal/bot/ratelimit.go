package bot

import (
	"sync"
	"time"
)

// RateLimiter allows one command per user and interval.
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[int64]time.Time
	now      func() time.Time
}

// NewRateLimiter returns a limiter; a zero interval allows everything.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		last:     make(map[int64]time.Time),
		now:      time.Now,
	}
}

func (r *RateLimiter) Allow(userID int64) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if last, ok := r.last[userID]; ok && now.Sub(last) < r.interval {
		return false
	}
	r.last[userID] = now

	if len(r.last) > 10000 {
		for id, t := range r.last {
			if now.Sub(t) >= r.interval {
				delete(r.last, id)
			}
		}
	}
	return true
}
