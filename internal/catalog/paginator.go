// Package catalog walks the paginated product listing and collects product links.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/extract"
	"github.com/IshaanNene/wbscrape/internal/observability"
	"github.com/IshaanNene/wbscrape/internal/render"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// Prober checks that a URL answers before the renderer is sent to it.
type Prober interface {
	Reachable(ctx context.Context, url string) error
}

// RobotsPolicy decides whether a URL may be crawled.
type RobotsPolicy interface {
	IsAllowed(ctx context.Context, url string) (bool, error)
}

// Paginator enumerates catalog pages ?page=1, ?page=2, ... until a page
// yields no product cards or offers no next-page control.
type Paginator struct {
	renderer       render.Renderer
	prober         Prober
	robots         RobotsPolicy
	delay          render.Waiter
	cfg            config.CatalogConfig
	maxScrollSteps int
	metrics        *observability.Metrics
	logger         *slog.Logger
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithProber enables the reachability check before each page load.
func WithProber(p Prober) Option { return func(pg *Paginator) { pg.prober = p } }

// WithRobots enables the robots.txt check of the start URL.
func WithRobots(r RobotsPolicy) Option { return func(pg *Paginator) { pg.robots = r } }

// New creates a Paginator driving r.
func New(r render.Renderer, delay render.Waiter, cfg config.CatalogConfig, maxScrollSteps int,
	metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Paginator {
	p := &Paginator{
		renderer:       r,
		delay:          delay,
		cfg:            cfg,
		maxScrollSteps: maxScrollSteps,
		metrics:        metrics,
		logger:         logger.With("component", "paginator"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PageURL returns startURL with its page query parameter set to n.
func PageURL(startURL string, n int) (string, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse start url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CollectProductLinks returns every product href found on the catalog in
// page order. Links are not deduplicated across pages. Page-level failures
// end the traversal and the links gathered so far are returned.
func (p *Paginator) CollectProductLinks(ctx context.Context, startURL string) ([]string, error) {
	if _, err := PageURL(startURL, 1); err != nil {
		return nil, err
	}

	if p.robots != nil {
		allowed, err := p.robots.IsAllowed(ctx, startURL)
		if err != nil {
			p.logger.Warn("robots check failed", "url", startURL, "error", err)
		} else if !allowed {
			p.logger.Error("start url disallowed by robots.txt", "url", startURL, "error", types.ErrBlocked)
			return nil, nil
		}
	}

	var links []string
	for page := 1; p.cfg.MaxPages <= 0 || page <= p.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return links, err
		}

		pageURL, _ := PageURL(startURL, page)
		found, hasNext, err := p.visit(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return links, ctx.Err()
			}
			p.metrics.Errors.Add(1)
			p.logger.Error("catalog page failed, stopping", "page", page, "url", pageURL, "error", err)
			break
		}
		if len(found) == 0 {
			p.logger.Info("catalog exhausted", "page", page, "reason", types.ErrNoCards)
			break
		}

		links = append(links, found...)
		p.metrics.ProductLinks.Add(int64(len(found)))
		p.logger.Info("catalog page collected", "page", page, "cards", len(found), "total", len(links))

		if !hasNext {
			p.logger.Info("no next page control, catalog exhausted", "page", page)
			break
		}
	}
	return links, nil
}

// visit loads one catalog page and returns its product links and whether a
// next-page control was present.
func (p *Paginator) visit(ctx context.Context, pageURL string) ([]string, bool, error) {
	if p.prober != nil && p.cfg.CheckReachability {
		if err := p.prober.Reachable(ctx, pageURL); err != nil {
			return nil, false, err
		}
	}

	if err := p.renderer.Navigate(ctx, pageURL); err != nil {
		return nil, false, err
	}
	p.metrics.PagesVisited.Add(1)

	if err := p.delay.Wait(ctx); err != nil {
		return nil, false, err
	}
	if _, err := render.ScrollToExhaustion(ctx, p.renderer, "", p.delay, p.maxScrollSteps); err != nil {
		p.logger.Warn("catalog scroll incomplete", "url", pageURL, "error", err)
	}

	doc, err := render.Snapshot(ctx, p.renderer)
	if err != nil {
		p.logger.Warn("catalog snapshot failed", "url", pageURL, "error", err)
		return nil, false, nil
	}

	base, _ := url.Parse(pageURL)
	found := extract.ProductLinks(doc, base)
	if len(found) == 0 {
		return nil, false, nil
	}

	next, ok := extract.NextPage.Match(doc)
	if !ok {
		return found, false, nil
	}
	if err := p.renderer.Click(ctx, next.XPath); err != nil {
		if errors.Is(err, types.ErrElementNotFound) {
			p.logger.Debug("next page control vanished before click", "url", pageURL)
		} else {
			p.logger.Warn("next page click failed", "url", pageURL, "error", err)
		}
	}
	return found, true, nil
}
