// Package reviews opens a product's review panel and extracts its reviews.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/IshaanNene/wbscrape/internal/extract"
	"github.com/IshaanNene/wbscrape/internal/observability"
	"github.com/IshaanNene/wbscrape/internal/render"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// Options bound one collection pass.
type Options struct {
	MaxReviews     int
	PhotosOnly     bool
	ScrollFraction float64
	MaxScrollSteps int
}

// Collector extracts reviews from the product page currently shown by the renderer.
type Collector struct {
	renderer  render.Renderer
	extractor *extract.Extractor
	delay     render.Waiter
	opts      Options
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewCollector creates a Collector.
func NewCollector(r render.Renderer, ex *extract.Extractor, delay render.Waiter, opts Options,
	metrics *observability.Metrics, logger *slog.Logger) *Collector {
	return &Collector{
		renderer:  r,
		extractor: ex,
		delay:     delay,
		opts:      opts,
		metrics:   metrics,
		logger:    logger.With("component", "review_collector"),
	}
}

// Collect opens the "all reviews" panel and returns up to MaxReviews records
// in document order. A product without the reviews control yields no records
// and no error.
func (c *Collector) Collect(ctx context.Context, productRef string, productIndex int) ([]*types.ReviewRecord, error) {
	if err := render.ScrollFraction(ctx, c.renderer, "", c.opts.ScrollFraction); err != nil {
		c.logger.Debug("partial scroll failed", "product", productRef, "error", err)
	}
	if err := c.delay.Wait(ctx); err != nil {
		return nil, err
	}

	doc, err := render.Snapshot(ctx, c.renderer)
	if err != nil {
		return nil, fmt.Errorf("snapshot product page: %w", err)
	}
	button, ok := extract.ReviewsButton.Match(doc)
	if !ok {
		c.logger.Info("no reviews control", "product", productRef)
		return nil, nil
	}
	if err := c.renderer.Click(ctx, button.XPath); err != nil {
		if errors.Is(err, types.ErrElementNotFound) {
			c.logger.Info("reviews control not clickable", "product", productRef)
			return nil, nil
		}
		return nil, fmt.Errorf("open reviews: %w", err)
	}
	if err := c.delay.Wait(ctx); err != nil {
		return nil, err
	}

	if _, err := render.ScrollToExhaustion(ctx, c.renderer, "", c.delay, c.opts.MaxScrollSteps); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("review scroll incomplete", "product", productRef, "error", err)
	}

	doc, err = render.Snapshot(ctx, c.renderer)
	if err != nil {
		return nil, fmt.Errorf("snapshot reviews: %w", err)
	}

	base, _ := url.Parse(productRef)
	return c.extract(doc, base, productRef, productIndex), nil
}
