package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces requests to a provider's rate_limit (requests per
// minute) by handing out evenly spaced start slots. A 429 pushes the next
// slot past the backend's Retry-After.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	mu       sync.Mutex
	rpm      int
	interval time.Duration
	next     time.Time // earliest start of the next request
	requests int64
	last429  time.Time
}

// RateLimiterStatus reports limiter state.
type RateLimiterStatus struct {
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	Requests          int64         `json:"requests" yaml:"requests"`
	Backoff           time.Duration `json:"backoff" yaml:"backoff"` // until the next slot opens
	Last429           time.Time     `json:"last_429,omitempty" yaml:"last_429,omitempty"`
}

// NewRateLimiter creates a limiter for requestsPerMinute.
// It returns nil when requestsPerMinute is not positive.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		rpm:      requestsPerMinute,
		interval: time.Minute / time.Duration(requestsPerMinute),
	}
}

// Wait blocks until the caller's slot opens or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil || r == nil {
		return err
	}

	r.mu.Lock()
	delay := r.reserve(time.Now())
	r.mu.Unlock()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reserve claims the next slot and returns how long until it starts.
// Must be called with the lock held.
func (r *RateLimiter) reserve(now time.Time) time.Duration {
	slot := r.next
	if slot.Before(now) {
		slot = now
	}
	r.next = slot.Add(r.interval)
	r.requests++
	return slot.Sub(now)
}

// Record429 holds new requests for retryAfter, or one interval when the
// backend sent no Retry-After.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429 = now
	if retryAfter <= 0 {
		retryAfter = r.interval
	}
	if until := now.Add(retryAfter); until.After(r.next) {
		r.next = until
	}
}

// Status returns current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	if r == nil {
		return RateLimiterStatus{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var backoff time.Duration
	if d := time.Until(r.next); d > 0 {
		backoff = d
	}
	return RateLimiterStatus{
		RequestsPerMinute: r.rpm,
		Requests:          r.requests,
		Backoff:           backoff,
		Last429:           r.last429,
	}
}
