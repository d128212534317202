package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/observability"
	"github.com/IshaanNene/wbscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestClient(t *testing.T, retries int) *HTTPClient {
	t.Helper()
	cfg := config.DefaultConfig().HTTP
	cfg.RatePerSecond = 0
	c, err := NewHTTPClient(cfg, RetryPolicy{MaxRetries: retries, BaseDelay: time.Millisecond}, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestReachable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/missing", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, 0)
	ctx := context.Background()

	if err := c.Reachable(ctx, srv.URL+"/ok"); err != nil {
		t.Errorf("/ok: unexpected error %v", err)
	}
	// redirects are not followed; a 3xx counts as reachable
	if err := c.Reachable(ctx, srv.URL+"/moved"); err != nil {
		t.Errorf("/moved: unexpected error %v", err)
	}

	err := c.Reachable(ctx, srv.URL+"/missing")
	if !errors.Is(err, types.ErrUnreachable) {
		t.Fatalf("/missing: expected ErrUnreachable, got %v", err)
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Errorf("expected FetchError with 404, got %v", err)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "image-bytes")
	}))
	defer srv.Close()

	c := newTestClient(t, 3)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "image-bytes" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, 5)
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 403")
	}
	if calls.Load() != 1 {
		t.Errorf("403 should not be retried, got %d calls", calls.Load())
	}
}

func TestGetDecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		io.WriteString(bw, "compressed payload")
		bw.Close()
	}))
	defer srv.Close()

	c := newTestClient(t, 0)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "compressed payload" {
		t.Errorf("body = %q", body)
	}
}

func TestGetRejectsOversizedBody(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().HTTP
	cfg.RatePerSecond = 0
	cfg.MaxBodySize = 1024
	c, err := NewHTTPClient(cfg, NoRetry, testLogger)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	_, err = io.ReadAll(resp.Body)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.URL != srv.URL {
		t.Errorf("expected FetchError for %s, got %v", srv.URL, err)
	}

	// a body of exactly max bytes is complete
	cfg.MaxBodySize = int64(len(payload))
	c, _ = NewHTTPClient(cfg, NoRetry, testLogger)
	resp, err = c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) != len(payload) {
		t.Errorf("read %d bytes, err %v; want %d bytes", len(body), err, len(payload))
	}
}

func TestClientCountsRequestsAndRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	m := observability.NewMetrics(testLogger)
	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry:    func(int, error) { m.RequestsRetried.Add(1) },
	}
	cfg := config.DefaultConfig().HTTP
	cfg.RatePerSecond = 0
	c, err := NewHTTPClient(cfg, policy, testLogger, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := m.RequestsTotal.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if got := m.RequestsRetried.Load(); got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}
}

func TestRetryPolicy(t *testing.T) {
	transient := &types.FetchError{URL: "u", Err: errors.New("reset"), Retryable: true}
	permanent := &types.FetchError{URL: "u", Err: errors.New("gone")}

	tests := []struct {
		name      string
		policy    RetryPolicy
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"success first try", RetryPolicy{MaxRetries: 2}, 0, nil, 1, false},
		{"recovers", RetryPolicy{MaxRetries: 2}, 2, transient, 3, false},
		{"exhausted", RetryPolicy{MaxRetries: 2}, 5, transient, 3, true},
		{"permanent", RetryPolicy{MaxRetries: 2}, 5, permanent, 1, true},
		{"no retry", NoRetry, 5, transient, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := tt.policy.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryPolicyExhaustedWrapsSentinel(t *testing.T) {
	p := RetryPolicy{MaxRetries: 1}
	err := p.Do(context.Background(), func(context.Context) error {
		return &types.RenderError{Op: "navigate", Target: "u", Err: errors.New("timeout"), Retryable: true}
	})
	if !errors.Is(err, types.ErrMaxRetries) {
		t.Errorf("expected ErrMaxRetries, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := p.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %s, want %s", i, got, w)
		}
	}
}

func TestHumanDelayRange(t *testing.T) {
	h := NewHumanDelay(ProfileNormal)
	for i := 0; i < 100; i++ {
		d := h.Next()
		if d < 500*time.Millisecond || d >= 2*time.Second {
			t.Fatalf("delay %s outside [0.5s, 2s)", d)
		}
	}
	if NewHumanDelay(ProfileNone).Next() != 0 {
		t.Error("none profile should not wait")
	}
}

func TestRobotsChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			io.WriteString(w, "User-agent: *\nDisallow: /private\n")
			return
		}
	}))
	defer srv.Close()

	rc := NewRobotsChecker(newTestClient(t, 0), "wbscrape", testLogger)
	ctx := context.Background()

	if ok, _ := rc.IsAllowed(ctx, srv.URL+"/catalog/diapers?page=1"); !ok {
		t.Error("catalog should be allowed")
	}
	if ok, _ := rc.IsAllowed(ctx, srv.URL+"/private/area"); ok {
		t.Error("/private should be disallowed")
	}
}
