package media

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Deduplicator is the run-wide set of photo URLs already submitted for
// download. It is safe for concurrent use.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// ShouldDownload reports whether rawURL is new, marking it seen in the same
// step. It returns true at most once per URL.
func (d *Deduplicator) ShouldDownload(rawURL string) bool {
	key := photoKey(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Count returns the number of distinct URLs seen.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Export returns the seen URLs in sorted order, for checkpoints.
func (d *Deduplicator) Export() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	urls := make([]string, 0, len(d.seen))
	for u := range d.seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Import marks urls as seen, for checkpoint restore.
func (d *Deduplicator) Import(urls []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range urls {
		d.seen[photoKey(u)] = struct{}{}
	}
}

// photoKey lowercases scheme and host and drops the fragment. Path and
// query are kept verbatim since CDNs key images on them.
func photoKey(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}
