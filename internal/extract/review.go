package extract

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// Labels prefixed to the three review text sections.
const (
	ProsLabel     = "Достоинства: "
	ConsLabel     = "Недостатки: "
	CommentsLabel = "Комментарии: "
)

// HasPhotos reports whether a review node carries a photo panel with items.
func HasPhotos(node *html.Node) bool {
	return len(PhotoItems.Nodes(node)) > 0
}

// ReviewPhotos returns the full-size photo URLs of a review in panel order.
func ReviewPhotos(node *html.Node, base *url.URL) []string {
	photos := []string{}
	for _, item := range PhotoItems.Nodes(node) {
		src, err := PhotoImage.Value(item)
		if err != nil {
			continue
		}
		photos = append(photos, NormalizePhotoURL(base, src))
	}
	return photos
}

// NormalizePhotoURL swaps the thumbnail suffix for the full-size one and
// resolves the URL against base.
func NormalizePhotoURL(base *url.URL, src string) string {
	if strings.Contains(src, "ms.webp") {
		src = strings.Replace(src, "ms.webp", "fs.webp", 1)
	}
	return Resolve(base, src)
}

// Review extracts one review node. Missing sub-fields are nil; the record is
// always returned.
func (e *Extractor) Review(node *html.Node, base *url.URL, productRef string, productIndex int) *types.ReviewRecord {
	var errs []error
	rec := &types.ReviewRecord{
		ProductRef:   productRef,
		ProductIndex: productIndex,
		PhotoURLs:    ReviewPhotos(node, base),
	}

	rec.AuthorName = optional("author", Author, node, &errs)

	if stamp, err := ReviewDate.Value(node); err != nil {
		errs = append(errs, fmt.Errorf("date: %w", err))
	} else if d, t, tz, err := NormalizeTimestamp(stamp); err != nil {
		errs = append(errs, fmt.Errorf("date: %w", err))
	} else {
		rec.Date, rec.Time, rec.TimezoneOffset = &d, &t, &tz
	}

	if class, err := Rating.Value(node); err != nil {
		errs = append(errs, fmt.Errorf("rating: %w", err))
	} else if r, err := ParseRating(class); err != nil {
		errs = append(errs, fmt.Errorf("rating: %w", err))
	} else {
		rec.Rating = &r
	}

	rec.ReviewText = ReviewText(node)

	e.report(productRef, errs)
	return rec
}

// ReviewText joins the labeled pros, cons and comments sections with newlines.
// It returns nil when none of the sections is present.
func ReviewText(node *html.Node) *string {
	sections := []struct {
		label string
		locs  Locators
	}{
		{ProsLabel, Pros},
		{ConsLabel, Cons},
		{CommentsLabel, Comments},
	}
	var parts []string
	for _, s := range sections {
		v, err := s.locs.Value(node)
		if err != nil || v == "" {
			continue
		}
		parts = append(parts, s.label+v)
	}
	if len(parts) == 0 {
		return nil
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	return &text
}
