package providers

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"
)

// RateLimitError is returned when the provider throttles the caller.
type RateLimitError struct {
	Status int
	Body   string
}

func (e *RateLimitError) Error() string {
	if e.Body != "" {
		return "rate limited: " + e.Body
	}
	return "rate limited"
}

// TransientError is a provider or network failure that may succeed on retry.
type TransientError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransientError) Error() string {
	switch {
	case e.Err != nil:
		return "transient provider error: " + e.Err.Error()
	case e.Status != 0:
		return "transient provider error (status " + strconv.Itoa(e.Status) + "): " + e.Body
	default:
		return "transient provider error"
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

// IsRateLimited reports whether err is or wraps a *RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTransient reports whether err is or wraps a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryPolicy retries one class of errors.
type RetryPolicy struct {
	Name string
	// MaxAttempts counts calls, including the first, that may fail with a
	// matching error before the error is returned.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter draws each wait uniformly from [delay/2, delay].
	Jitter  bool
	Matches func(error) bool
}

// Backoff returns the wait after the n-th failed attempt (n starts at 1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n && i < 32 && (p.MaxDelay == 0 || d < p.MaxDelay); i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 1 {
		half := d / 2
		d = half + time.Duration(rand.Int64N(int64(d-half)+1))
	}
	return d
}

// DefaultPolicies returns the rate-limit policy (outer) followed by the
// transient-error policy (inner).
func DefaultPolicies() []RetryPolicy {
	return []RetryPolicy{RateLimitPolicy(10, 4*time.Second, 2*time.Minute), TransientPolicy(3, time.Second, 10*time.Second)}
}

// RateLimitPolicy retries throttling errors with randomized exponential backoff.
func RateLimitPolicy(attempts int, base, max time.Duration) RetryPolicy {
	return RetryPolicy{
		Name:        "rate-limited",
		MaxAttempts: attempts,
		BaseDelay:   base,
		MaxDelay:    max,
		Jitter:      true,
		Matches:     IsRateLimited,
	}
}

// TransientPolicy retries server and network errors.
func TransientPolicy(attempts int, base, max time.Duration) RetryPolicy {
	return RetryPolicy{
		Name:        "transient",
		MaxAttempts: attempts,
		BaseDelay:   base,
		MaxDelay:    max,
		Matches:     IsTransient,
	}
}

// Retrier runs a call under an ordered list of retry policies, outermost
// first. Each policy keeps its own attempt counter; when an outer policy
// retries, the counters of the policies after it start over, the same as
// nesting the inner retry loop inside the outer one.
type Retrier struct {
	Policies []RetryPolicy
	// OnRetry is called before each wait.
	OnRetry func(p RetryPolicy, attempt int, err error, wait time.Duration)

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier with the given policies.
func NewRetrier(policies ...RetryPolicy) *Retrier {
	return &Retrier{Policies: policies}
}

// Retry runs fn under policies. Errors that no policy matches, and errors
// whose policy is exhausted, are returned unchanged.
func Retry(ctx context.Context, policies []RetryPolicy, fn func(context.Context) error) error {
	return NewRetrier(policies...).Do(ctx, fn)
}

// Do runs fn until it succeeds or an error is not retried.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	failures := make([]int, len(r.Policies))
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		idx := -1
		for i, p := range r.Policies {
			if p.Matches != nil && p.Matches(err) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return err
		}

		p := r.Policies[idx]
		failures[idx]++
		if failures[idx] >= p.MaxAttempts {
			return err
		}
		for j := idx + 1; j < len(failures); j++ {
			failures[j] = 0
		}

		wait := p.Backoff(failures[idx])
		if r.OnRetry != nil {
			r.OnRetry(p, failures[idx], err, wait)
		}
		sleep := r.sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
