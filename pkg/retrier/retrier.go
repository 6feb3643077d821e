// Package retrier retries an operation with exponential backoff and jitter.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMultiplier      = 2.0
	defaultJitter          = 0.1
)

// Retrier implements exponential backoff with jitter.
//
// Attempts stop on success, on a non-retryable error, once maxRetries
// retries were made, or once the overall wait budget would be exceeded.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	maxElapsed      time.Duration
	jitter          float64
	retryIf         func(error) bool
	sleep           func(ctx context.Context, d time.Duration) error
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the initial retry interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps a single backoff interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets the maximum number of retries. Zero means a single attempt;
// a negative value leaves the count unbounded.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithMaxElapsed bounds the total time spent sleeping between attempts.
func WithMaxElapsed(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxElapsed = d
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithRetryIf retries only errors for which fn returns true.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      -1,
		jitter:          defaultJitter,
		retryIf:         func(error) bool { return true },
		sleep:           sleepCtx,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do executes fn until it succeeds or the retrier gives up, returning the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	interval := r.initialInterval
	var slept time.Duration

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !r.retryIf(err) {
			return err
		}
		if r.maxRetries >= 0 && attempt >= r.maxRetries {
			return err
		}

		wait := r.withJitter(interval)
		if r.maxElapsed > 0 {
			if slept >= r.maxElapsed {
				return err
			}
			if slept+wait > r.maxElapsed {
				wait = r.maxElapsed - slept
			}
		}

		if serr := r.sleep(ctx, wait); serr != nil {
			return serr
		}
		slept += wait

		interval = time.Duration(float64(interval) * r.multiplier)
		if interval > r.maxInterval {
			interval = r.maxInterval
		}
	}
}

func (r *Retrier) withJitter(interval time.Duration) time.Duration {
	jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
	d := time.Duration(float64(interval) + jitter)
	if d < 0 {
		return 0
	}
	return d
}

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
