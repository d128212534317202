package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsChecker caches robots.txt rules per host.
type RobotsChecker struct {
	client    Client
	userAgent string
	mu        sync.Mutex
	rules     map[string]*robotstxt.RobotsData
	logger    *slog.Logger
}

// NewRobotsChecker creates a robots.txt checker that fetches through client.
func NewRobotsChecker(client Client, userAgent string, logger *slog.Logger) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string]*robotstxt.RobotsData),
		logger:    logger.With("component", "robots"),
	}
}

// IsAllowed reports whether rawURL may be fetched. When robots.txt cannot be
// retrieved the URL is allowed.
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}

	data, err := r.get(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing", "host", u.Host, "error", err)
		return true, nil
	}

	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.FindGroup(r.userAgent).Test(path), nil
}

func (r *RobotsChecker) get(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.rules[origin]; ok {
		return data, nil
	}

	resp, err := r.client.Get(ctx, origin+"/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.rules[origin] = data
	return data, nil
}
