// Package rendertest provides an in-memory Renderer for tests.
package rendertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/wbscrape/internal/render"
	"github.com/IshaanNene/wbscrape/internal/types"
)

var _ render.Renderer = (*Fake)(nil)

// Fake serves canned HTML per URL and swaps documents on registered clicks.
type Fake struct {
	mu          sync.Mutex
	pages       map[string]string
	transitions map[string]string
	failing     map[string]error
	heights     []int
	heightIdx   int

	current string
	html    string

	Navigations []string
	Clicks      []string
	Scrolls     int
	CloseCalls  int
}

// NewFake creates an empty fake renderer.
func NewFake() *Fake {
	return &Fake{
		pages:       make(map[string]string),
		transitions: make(map[string]string),
		failing:     make(map[string]error),
	}
}

// AddPage registers the document served for url.
func (f *Fake) AddPage(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = html
}

// OnClick registers the document shown after xpath is clicked on url.
func (f *Fake) OnClick(url, xpath, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions[url+"\x00"+xpath] = html
}

// FailNavigation makes navigating to url return err.
func (f *Fake) FailNavigation(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[url] = err
}

// SetHeights sets the sequence returned by successive ScrollHeight calls.
// The last value repeats once the sequence is exhausted.
func (f *Fake) SetHeights(h ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heights = h
	f.heightIdx = 0
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigations = append(f.Navigations, url)
	if err, ok := f.failing[url]; ok {
		return &types.RenderError{Op: "navigate", Target: url, Err: err}
	}
	html, ok := f.pages[url]
	if !ok {
		html = "<html><body></body></html>"
	}
	f.current = url
	f.html = html
	return nil
}

// NavigationCount returns how many times url was loaded.
func (f *Fake) NavigationCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.Navigations {
		if u == url {
			n++
		}
	}
	return n
}

func (f *Fake) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == "" {
		return "", errors.New("no page loaded")
	}
	return f.html, nil
}

func (f *Fake) ScrollHeight(_ context.Context, target string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireLocked(target); err != nil {
		return 0, err
	}
	if len(f.heights) == 0 {
		return 1000, nil
	}
	h := f.heights[f.heightIdx]
	if f.heightIdx < len(f.heights)-1 {
		f.heightIdx++
	}
	return h, nil
}

func (f *Fake) ScrollTo(_ context.Context, target string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireLocked(target); err != nil {
		return err
	}
	f.Scrolls++
	return nil
}

func (f *Fake) Click(_ context.Context, xpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireLocked(xpath); err != nil {
		return err
	}
	f.Clicks = append(f.Clicks, xpath)
	if next, ok := f.transitions[f.current+"\x00"+xpath]; ok {
		f.html = next
	}
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls++
	return nil
}

// requireLocked fails with ErrElementNotFound when xpath matches nothing in
// the current document. An empty xpath targets the window.
func (f *Fake) requireLocked(xpath string) error {
	if xpath == "" {
		return nil
	}
	doc, err := htmlquery.Parse(strings.NewReader(f.html))
	if err != nil {
		return err
	}
	node, err := htmlquery.Query(doc, xpath)
	if err != nil {
		return fmt.Errorf("bad xpath %q: %w", xpath, err)
	}
	if node == nil {
		return &types.RenderError{Op: "find", Target: xpath, Err: types.ErrElementNotFound}
	}
	return nil
}
