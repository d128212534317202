package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// Extractor applies the field locators and logs per-field misses.
// Every method is failure-isolated: a missing field yields nil and never
// affects its siblings.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// ProductHeader fills the fields visible on the product page itself.
func (e *Extractor) ProductHeader(doc *html.Node, rec *types.ProductRecord) {
	var errs []error
	rec.ArticleID = optional("article_id", ArticleID, doc, &errs)
	rec.Brand = optional("brand", Brand, doc, &errs)
	rec.Name = optional("name", Name, doc, &errs)

	if raw, err := Price.Value(doc); err != nil {
		errs = append(errs, fmt.Errorf("price: %w", err))
	} else if p, err := ParsePrice(raw); err != nil {
		errs = append(errs, fmt.Errorf("price: %w", err))
	} else {
		rec.Price = &p
	}

	e.report(rec.URL, errs)
}

// ProductDetails fills the fields shown in the characteristics popup. Label
// lookups are scoped to the popup when it can be located in doc.
func (e *Extractor) ProductDetails(doc *html.Node, rec *types.ProductRecord) {
	if popup := DetailsPopup.Nodes(doc); len(popup) > 0 {
		doc = popup[0]
	} else {
		e.logger.Debug("details popup not located, using whole page", "url", rec.URL)
	}

	var errs []error
	rec.Color = optional("color", Color, doc, &errs)
	rec.DiaperType = optional("diaper_type", DiaperType, doc, &errs)
	rec.UnitCount = optional("unit_count", UnitCount, doc, &errs)
	rec.WeightCategory = optional("weight_category", WeightCategory, doc, &errs)
	rec.ProducingCountry = optional("producing_country", Country, doc, &errs)
	rec.Description = optional("description", Description, doc, &errs)

	length := optional("package_length", PackageLength, doc, &errs)
	height := optional("package_height", PackageHeight, doc, &errs)
	width := optional("package_width", PackageWidth, doc, &errs)
	rec.OverallSize = OverallSize(width, height, length)

	e.report(rec.URL, errs)
}

// ProductLinks returns the product hrefs on a catalog page resolved against base.
// Cards without an href are skipped.
func ProductLinks(doc *html.Node, base *url.URL) []string {
	if doc == nil {
		return nil
	}
	var links []string
	for _, l := range CardLinks {
		nodes, err := htmlquery.QueryAll(doc, l.XPath)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			href := nodeValue(n, l.Attr)
			if href == "" {
				continue
			}
			links = append(links, Resolve(base, href))
		}
		if len(links) > 0 {
			break
		}
	}
	return links
}

// ParsePrice parses a localized price such as "1 234 ₽" into whole roubles.
func ParsePrice(raw string) (int, error) {
	s := strings.NewReplacer(
		"\u00a0", "",
		"\u202f", "",
		"\u2009", "",
		" ", "",
		"₽", "",
		"руб.", "",
		"руб", "",
	).Replace(raw)
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty price")
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("non-numeric price %q", raw)
	}
	return p, nil
}

// OverallSize combines package dimensions as "WxHxL" in centimeters.
// It returns nil unless all three components are present.
func OverallSize(width, height, length *string) *string {
	w, h, l := stripUnit(width), stripUnit(height), stripUnit(length)
	if w == "" || h == "" || l == "" {
		return nil
	}
	s := fmt.Sprintf("%sx%sx%s", w, h, l)
	return &s
}

func stripUnit(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	s = strings.TrimSuffix(s, "см")
	return strings.TrimSpace(s)
}

// Resolve turns a possibly relative or protocol-relative href into an absolute URL.
func Resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func (e *Extractor) report(ref string, errs []error) {
	for _, err := range errs {
		e.logger.Debug("field missing", "url", ref, "error", err)
	}
}
