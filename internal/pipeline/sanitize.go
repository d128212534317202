package pipeline

import (
	"html"
	"regexp"
	"strings"

	"github.com/IshaanNene/wbscrape/internal/types"
)

var tagRe = regexp.MustCompile(`<[^>]*>`)

// sanitize strips leftover tags, decodes entities and collapses whitespace.
// A value that is empty afterwards becomes nil.
func sanitize(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := tagRe.ReplaceAllString(*s, "")
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// sanitizeLines is sanitize applied per line; blank lines are dropped.
func sanitizeLines(s *string) *string {
	if s == nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(*s, "\n") {
		if c := sanitize(&line); c != nil {
			lines = append(lines, *c)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	joined := strings.Join(lines, "\n")
	return &joined
}

// ProductSanitizer normalizes the text fields of a product record.
type ProductSanitizer struct{}

func NewProductSanitizer() *ProductSanitizer { return &ProductSanitizer{} }

func (m *ProductSanitizer) Name() string { return "product_sanitize" }

func (m *ProductSanitizer) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	for _, f := range []**string{
		&rec.ArticleID, &rec.Brand, &rec.Name, &rec.Color, &rec.DiaperType,
		&rec.UnitCount, &rec.WeightCategory, &rec.ProducingCountry, &rec.OverallSize,
	} {
		*f = sanitize(*f)
	}
	rec.Description = sanitizeLines(rec.Description)
	return rec, nil
}

// ReviewSanitizer normalizes the author and text of a review. Section
// breaks in the text are kept.
type ReviewSanitizer struct{}

func NewReviewSanitizer() *ReviewSanitizer { return &ReviewSanitizer{} }

func (m *ReviewSanitizer) Name() string { return "review_sanitize" }

func (m *ReviewSanitizer) Process(rec *types.ReviewRecord) (*types.ReviewRecord, error) {
	rec.AuthorName = sanitize(rec.AuthorName)
	rec.ReviewText = sanitizeLines(rec.ReviewText)
	if rec.PhotoURLs == nil {
		rec.PhotoURLs = []string{}
	}
	return rec, nil
}
