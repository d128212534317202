package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/fetcher"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// RodRenderer implements Renderer with a headless Chromium driven by Rod.
type RodRenderer struct {
	launcher        *launcher.Launcher
	browser         *rod.Browser
	page            *rod.Page
	policy          fetcher.RetryPolicy
	navigateTimeout time.Duration
	elementTimeout  time.Duration
	logger          *slog.Logger

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// NewRodRenderer launches a browser and opens the single page it will drive.
func NewRodRenderer(cfg config.BrowserConfig, policy fetcher.RetryPolicy, logger *slog.Logger) (*RodRenderer, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}
	if cfg.WindowSize != "" {
		l = l.Set("window-size", cfg.WindowSize)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	r := &RodRenderer{
		launcher:        l,
		browser:         browser,
		page:            page,
		policy:          policy,
		navigateTimeout: cfg.NavigateTimeout,
		elementTimeout:  cfg.ElementTimeout,
		logger:          logger.With("component", "rod_renderer"),
	}
	r.logger.Info("browser ready", "headless", cfg.Headless, "stealth", cfg.Stealth)
	return r, nil
}

// Navigate loads url, retrying per the renderer's policy.
func (r *RodRenderer) Navigate(ctx context.Context, url string) error {
	if r.closed {
		return types.ErrRendererClosed
	}
	return r.policy.Do(ctx, func(ctx context.Context) error {
		p := r.page.Context(ctx).Timeout(r.navigateTimeout)
		if err := p.Navigate(url); err != nil {
			return &types.RenderError{Op: "navigate", Target: url, Err: err, Retryable: ctx.Err() == nil}
		}
		if err := p.WaitStable(300 * time.Millisecond); err != nil {
			r.logger.Warn("page stability timeout, continuing", "url", url, "error", err)
		}
		return nil
	})
}

// HTML returns the current document.
func (r *RodRenderer) HTML(ctx context.Context) (string, error) {
	if r.closed {
		return "", types.ErrRendererClosed
	}
	src, err := r.page.Context(ctx).HTML()
	if err != nil {
		return "", &types.RenderError{Op: "html", Err: err}
	}
	return src, nil
}

// ScrollHeight returns the scrollHeight of the window or of the element at target.
func (r *RodRenderer) ScrollHeight(ctx context.Context, target string) (int, error) {
	if target == "" {
		res, err := r.page.Context(ctx).Eval(`() => document.body.scrollHeight`)
		if err != nil {
			return 0, &types.RenderError{Op: "scroll_height", Err: err}
		}
		return res.Value.Int(), nil
	}

	el, err := r.element(ctx, target)
	if err != nil {
		return 0, err
	}
	res, err := el.Eval(`function () { return this.scrollHeight }`)
	if err != nil {
		return 0, &types.RenderError{Op: "scroll_height", Target: target, Err: err}
	}
	return res.Value.Int(), nil
}

// ScrollTo scrolls the window or the element at target to offset y.
func (r *RodRenderer) ScrollTo(ctx context.Context, target string, y int) error {
	if target == "" {
		if _, err := r.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
			return &types.RenderError{Op: "scroll", Err: err}
		}
		return nil
	}

	el, err := r.element(ctx, target)
	if err != nil {
		return err
	}
	if _, err := el.Eval(`function (y) { this.scrollTop = y }`, y); err != nil {
		return &types.RenderError{Op: "scroll", Target: target, Err: err}
	}
	return nil
}

// Click clicks the element matched by xpath.
func (r *RodRenderer) Click(ctx context.Context, xpath string) error {
	el, err := r.element(ctx, xpath)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		r.logger.Debug("scroll into view failed", "xpath", xpath, "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &types.RenderError{Op: "click", Target: xpath, Err: err}
	}
	return nil
}

// Close releases the page and browser exactly once.
func (r *RodRenderer) Close() error {
	r.closeOnce.Do(func() {
		r.closed = true
		if err := r.page.Close(); err != nil {
			r.logger.Debug("page close failed", "error", err)
		}
		r.closeErr = r.browser.Close()
		r.launcher.Kill()
		r.launcher.Cleanup()
		r.logger.Info("browser released")
	})
	return r.closeErr
}

func (r *RodRenderer) element(ctx context.Context, xpath string) (*rod.Element, error) {
	if r.closed {
		return nil, types.ErrRendererClosed
	}
	el, err := r.page.Context(ctx).Timeout(r.elementTimeout).ElementX(xpath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", types.ErrElementNotFound, err)
		}
		return nil, &types.RenderError{Op: "find", Target: xpath, Err: err}
	}
	return el, nil
}
