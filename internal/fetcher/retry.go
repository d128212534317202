package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// RetryPolicy is the single retry/backoff policy shared by the HTTP client
// and the page renderer. Only errors reporting IsRetryable() are retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// OnRetry, when set, is called before each retry with the failed
	// attempt number (0-based) and its error.
	OnRetry func(attempt int, err error)
}

// NoRetry runs an operation exactly once.
var NoRetry = RetryPolicy{}

// Do runs op until it succeeds, fails with a non-retryable error,
// exhausts MaxRetries, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !types.IsRetryable(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			if attempt == 0 {
				return err
			}
			return fmt.Errorf("%w after %d attempts: %w", types.ErrMaxRetries, attempt+1, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
}

// Backoff returns the wait before retry number attempt+1 (exponential, capped).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << attempt
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}
