package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Renderer drives a single rendered browser page. Implementations are not
// safe for concurrent use; one owner drives the page for its whole life.
//
// Element targets are XPath expressions. An empty target means the window.
type Renderer interface {
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// HTML returns the current serialized DOM.
	HTML(ctx context.Context) (string, error)

	// ScrollHeight returns the scrollable height of target.
	ScrollHeight(ctx context.Context, target string) (int, error)

	// ScrollTo scrolls target to vertical offset y.
	ScrollTo(ctx context.Context, target string, y int) error

	// Click waits for the element matched by xpath and clicks it. A missing
	// element yields an error wrapping types.ErrElementNotFound.
	Click(ctx context.Context, xpath string) error

	// Close releases the page and the browser. Calling it more than once is allowed.
	Close() error
}

// Snapshot parses the renderer's current DOM.
func Snapshot(ctx context.Context, r Renderer) (*html.Node, error) {
	src, err := r.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return doc, nil
}
