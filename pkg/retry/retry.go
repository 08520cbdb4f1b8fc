// Package retry runs an operation again with exponential backoff while it
// keeps failing with a transient error.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Factor multiplies the backoff after each retry. Defaults to 2.
	Factor float64

	// Jitter adds up to one extra backoff of random delay.
	Jitter bool
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Factor:         2,
		Jitter:         true,
	}
}

// OnRetry is called before each retry; attempt starts at 1.
type OnRetry func(attempt int, err error, backoff time.Duration)

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a Permanent error, the retries are
// used up or ctx is done. The last error is returned unchanged except for
// the Permanent wrapper, which is removed.
func Do[T any](ctx context.Context, cfg Config, onRetry OnRetry, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.Factor <= 0 {
		cfg.Factor = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if cfg.Jitter {
				wait += rand.N(backoff)
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w (last error: %w)", ctx.Err(), lastErr)
			case <-timer.C:
			}

			backoff = min(time.Duration(float64(backoff)*cfg.Factor), cfg.MaxBackoff)
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err
	}
	return zero, lastErr
}
