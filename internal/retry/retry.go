// Package retry runs fallible operations under a bounded exponential
// backoff policy. Whether an error is worth another attempt is decided
// by the policy's predicate, which is total over apperr kinds.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/kalambet/vono/internal/apperr"
)

// Policy is an immutable retry configuration.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// ShouldRetry reports whether the error is worth another attempt.
	// Nil means the default predicate.
	ShouldRetry func(error) bool
}

// DefaultPolicy returns the provider-call policy: 3 attempts, delays of
// 1s then 2s (capped at 8s), retrying only errors that time may fix.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     8 * time.Second,
		ShouldRetry:  defaultShouldRetry,
	}
}

// defaultShouldRetry retries transient and unclassified errors.
// Rate limits are handled by pre-admission, not by waiting one out
// mid-loop; validation, schema and credential errors cannot change
// between attempts.
func defaultShouldRetry(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindRateLimited,
		apperr.KindValidation,
		apperr.KindSchema,
		apperr.KindCredentialMissing,
		apperr.KindCredentialInvalid:
		return false
	default:
		return true
	}
}

// Runner executes operations under a Policy.
type Runner struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSleep overrides how inter-attempt waits are performed (for tests).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRunner creates a Runner. A MaxAttempts below 1 is treated as 1;
// a nil ShouldRetry gets the default predicate.
func NewRunner(policy Policy, opts ...Option) *Runner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = defaultShouldRetry
	}
	r := &Runner{
		policy: policy,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes op until it succeeds, the policy refuses a retry, or the
// attempt budget is spent. It returns the number of attempts actually
// made. The delay before attempt n+1 is InitialDelay*2^(n-1), capped at
// MaxDelay, with no jitter. When the final error is an *apperr.Error its
// Attempts field is stamped so failure handling can report the count.
func (r *Runner) Run(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return attempt, nil
		}
		if attempt == r.policy.MaxAttempts || !r.policy.ShouldRetry(err) {
			return attempt, stampAttempts(err, attempt)
		}
		if sleepErr := r.sleep(ctx, r.delay(attempt)); sleepErr != nil {
			return attempt, stampAttempts(err, attempt)
		}
	}
	return r.policy.MaxAttempts, stampAttempts(err, r.policy.MaxAttempts)
}

// delay computes the wait after the given 1-based failed attempt.
func (r *Runner) delay(attempt int) time.Duration {
	d := r.policy.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
	}
	if d > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return d
}

func stampAttempts(err error, attempts int) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		ae.Attempts = attempts
	}
	return err
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
