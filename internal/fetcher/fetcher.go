package fetcher

import (
	"context"
	"io"
)

// Client is the HTTP capability used for availability checks and asset transfers.
type Client interface {
	// Reachable issues a HEAD request and returns nil when the resource
	// answers with a 2xx or 3xx status.
	Reachable(ctx context.Context, rawURL string) error

	// Get opens the resource body. Non-2xx responses are returned as errors.
	Get(ctx context.Context, rawURL string) (*Response, error)

	// Close releases idle connections.
	Close() error
}

// Response is an open, already-decoded response body.
type Response struct {
	URL           string
	StatusCode    int
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}
