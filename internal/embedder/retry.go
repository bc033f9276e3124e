package embedder

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryConfig bounds how often a failed model call is repeated. The delay
// doubles from BaseDelay up to MaxDelay; a Retry-After hint from the server
// replaces it, still capped by MaxDelay.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig returns the retry policy used by remote providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
}

func (c RetryConfig) delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return min(hint, c.MaxDelay)
	}
	d := c.BaseDelay << (attempt - 1)
	if d <= 0 || d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// retryable reports whether repeating a failed call can succeed. Transport
// and decode failures are retried, as are rate limits, request timeouts and
// server errors. Other client errors are final.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests ||
			se.code == http.StatusRequestTimeout ||
			se.code >= 500
	}
	return true
}

// do runs call until it succeeds, fails for good, runs out of attempts or
// ctx ends
func (c RetryConfig) do(ctx context.Context, call func(context.Context) error) error {
	attempts := max(c.Attempts, 1)
	for attempt := 1; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= attempts {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var hint time.Duration
		var se *statusError
		if errors.As(err, &se) {
			hint = se.retryAfter
		}
		timer := time.NewTimer(c.delay(attempt, hint))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
