// Package ratelimit provides per-endpoint token buckets used to gate
// provider calls before they leave the process. Admission is checked
// before a request starts; an admitted call is never interrupted by
// the limiter.
package ratelimit

import (
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Limiter is a token bucket for a single provider endpoint. Buckets
// start full, refill continuously, and never exceed their burst
// capacity. Independent endpoints get independent Limiter values.
type Limiter struct {
	endpoint  string
	limiter   *rate.Limiter
	perSecond float64
	burst     int
	clock     Clock
}

// New creates a full bucket admitting perMinute requests per minute
// with the given burst capacity.
func New(endpoint string, perMinute float64, burst int) *Limiter {
	return NewWithClock(endpoint, perMinute, burst, realClock{})
}

// NewWithClock creates a Limiter with a custom clock (for testing).
func NewWithClock(endpoint string, perMinute float64, burst int, clock Clock) *Limiter {
	perSecond := perMinute / 60.0
	l := rate.NewLimiter(rate.Limit(perSecond), burst)
	// Anchor the refill origin to the injected clock so tests measure
	// elapsed time from construction, not from the zero time.
	l.AllowN(clock.Now(), 0)
	return &Limiter{
		endpoint:  endpoint,
		limiter:   l,
		perSecond: perSecond,
		burst:     burst,
		clock:     clock,
	}
}

// Acquire reports whether cost tokens were available, consuming them
// when they were. It never blocks. A cost outside [1, burst] can never
// be admitted and is a caller bug; it is logged and refused without
// consuming tokens.
func (l *Limiter) Acquire(cost int) bool {
	if cost < 1 || cost > l.burst {
		slog.Error("rate limiter acquire with impossible cost",
			"endpoint", l.endpoint, "cost", cost, "burst", l.burst)
		return false
	}
	return l.limiter.AllowN(l.clock.Now(), cost)
}

// Wait estimates how long until n tokens will be available. Returns 0
// when they already are. The estimate is rounded up to the next
// millisecond so callers sleeping for it do not wake a hair early.
func (l *Limiter) Wait(n int) time.Duration {
	tokens := l.limiter.TokensAt(l.clock.Now())
	missing := float64(n) - tokens
	if missing <= 0 {
		return 0
	}
	ms := math.Ceil(missing / l.perSecond * 1000)
	return time.Duration(ms) * time.Millisecond
}

// Endpoint returns the endpoint label this limiter guards.
func (l *Limiter) Endpoint() string { return l.endpoint }

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int { return l.burst }
