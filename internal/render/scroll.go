package render

import (
	"context"
	"fmt"
)

// Waiter pauses between interaction steps.
type Waiter interface {
	Wait(ctx context.Context) error
}

// ScrollToExhaustion scrolls target to its bottom until its height stops
// growing, i.e. no further lazily-loaded content appears. It performs at most
// maxSteps scrolls and returns the number performed.
func ScrollToExhaustion(ctx context.Context, r Renderer, target string, w Waiter, maxSteps int) (int, error) {
	last, err := r.ScrollHeight(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("scroll height: %w", err)
	}

	steps := 0
	for steps < maxSteps {
		if err := r.ScrollTo(ctx, target, last); err != nil {
			return steps, fmt.Errorf("scroll: %w", err)
		}
		steps++

		if err := w.Wait(ctx); err != nil {
			return steps, err
		}

		height, err := r.ScrollHeight(ctx, target)
		if err != nil {
			return steps, fmt.Errorf("scroll height: %w", err)
		}
		if height == last {
			break
		}
		last = height
	}
	return steps, nil
}

// ScrollFraction scrolls target to fraction of its current height, which is
// enough to make lazily rendered controls further down the page appear.
func ScrollFraction(ctx context.Context, r Renderer, target string, fraction float64) error {
	height, err := r.ScrollHeight(ctx, target)
	if err != nil {
		return fmt.Errorf("scroll height: %w", err)
	}
	return r.ScrollTo(ctx, target, int(float64(height)*fraction))
}
