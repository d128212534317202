package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/observability"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// HTTPClient implements Client using net/http.
type HTTPClient struct {
	client      *http.Client
	headClient  *http.Client
	headTimeout time.Duration
	policy      RetryPolicy
	limiter     *rate.Limiter
	userAgent   string
	maxBodySize int64
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithMetrics counts every request sent on m.
func WithMetrics(m *observability.Metrics) HTTPOption {
	return func(c *HTTPClient) { c.metrics = m }
}

// NewHTTPClient creates a new HTTP client governed by the given retry policy.
func NewHTTPClient(cfg config.HTTPConfig, policy RetryPolicy, logger *slog.Logger, opts ...HTTPOption) (*HTTPClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decoded below, including brotli
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}

	c := &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   cfg.RequestTimeout,
		},
		// availability checks look at the first answer only
		headClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		headTimeout: cfg.HeadTimeout,
		policy:      policy,
		limiter:     limiter,
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
		logger:      logger.With("component", "http_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Reachable reports whether the URL answers HEAD with a 2xx or 3xx status.
func (c *HTTPClient) Reachable(ctx context.Context, rawURL string) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		if c.headTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.headTimeout)
			defer cancel()
		}

		resp, err := c.do(ctx, c.headClient, http.MethodHead, rawURL)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 400 {
			return &types.FetchError{
				URL:        rawURL,
				StatusCode: resp.StatusCode,
				Err:        types.ErrUnreachable,
				Retryable:  retryableStatus(resp.StatusCode),
			}
		}
		return nil
	})
}

// Get opens the resource body, retrying transient failures.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*Response, error) {
	var out *Response
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := c.do(ctx, c.client, http.MethodGet, rawURL)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &types.FetchError{
				URL:        rawURL,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
				Retryable:  retryableStatus(resp.StatusCode),
			}
		}

		reader, err := decompressReader(resp, resp.Body)
		if err != nil {
			resp.Body.Close()
			return &types.FetchError{URL: rawURL, Err: err}
		}
		if c.maxBodySize > 0 {
			reader = &limitedBody{r: reader, max: c.maxBodySize, url: rawURL}
		}

		out = &Response{
			URL:           rawURL,
			StatusCode:    resp.StatusCode,
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: resp.ContentLength,
			Body:          readCloser{Reader: reader, Closer: resp.Body},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, client *http.Client, method, rawURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,text/html,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	if c.metrics != nil {
		c.metrics.RequestsTotal.Add(1)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}

	c.logger.Debug("http response",
		"method", method,
		"url", rawURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

// ErrBodyTooLarge reports a decoded body longer than max_body_size.
var ErrBodyTooLarge = errors.New("body exceeds max_body_size")

// limitedBody fails the read once more than max decoded bytes come through,
// so a caller never mistakes a cut-off body for a complete one.
type limitedBody struct {
	r    io.Reader
	max  int64
	read int64
	url  string
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.read > l.max {
		return 0, l.tooLarge()
	}
	if rem := l.max - l.read + 1; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		return n, l.tooLarge()
	}
	return n, err
}

func (l *limitedBody) tooLarge() error {
	return &types.FetchError{URL: l.url, Err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, l.max)}
}

type readCloser struct {
	io.Reader
	io.Closer
}

// decompressReader wraps a reader with the decoder named by Content-Encoding.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}
