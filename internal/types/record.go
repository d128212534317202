package types

import (
	"fmt"
	"time"
)

// ProductRecord holds the attributes extracted from one product page.
// A nil field means the value could not be extracted.
type ProductRecord struct {
	Index            int       `json:"index"             bson:"index"`
	URL              string    `json:"url"               bson:"url"`
	ArticleID        *string   `json:"article_id"        bson:"article_id"`
	Brand            *string   `json:"brand"             bson:"brand"`
	Name             *string   `json:"name"              bson:"name"`
	Price            *int      `json:"price"             bson:"price"`
	Color            *string   `json:"color"             bson:"color"`
	DiaperType       *string   `json:"diaper_type"       bson:"diaper_type"`
	UnitCount        *string   `json:"unit_count"        bson:"unit_count"`
	WeightCategory   *string   `json:"weight_category"   bson:"weight_category"`
	ProducingCountry *string   `json:"producing_country" bson:"producing_country"`
	OverallSize      *string   `json:"overall_size"      bson:"overall_size"`
	Description      *string   `json:"description"       bson:"description"`
	ScrapedAt        time.Time `json:"scraped_at"        bson:"scraped_at"`
}

// Key returns the record identity: the article ID when known, else its position.
func (p *ProductRecord) Key() string {
	if p.ArticleID != nil && *p.ArticleID != "" {
		return *p.ArticleID
	}
	return fmt.Sprintf("#%d", p.Index)
}

// ReviewRecord holds one customer review.
type ReviewRecord struct {
	ProductRef     string   `json:"product_ref"     bson:"product_ref"`
	ProductIndex   int      `json:"product_index"   bson:"product_index"`
	AuthorName     *string  `json:"author_name"     bson:"author_name"`
	Date           *string  `json:"date"            bson:"date"`
	Time           *string  `json:"time"            bson:"time"`
	TimezoneOffset *string  `json:"timezone_offset" bson:"timezone_offset"`
	Rating         *int     `json:"rating"          bson:"rating"`
	ReviewText     *string  `json:"review_text"     bson:"review_text"`
	PhotoURLs      []string `json:"photo_urls"      bson:"photo_urls"`
}

// PhotoAsset is a single photo scheduled for download.
type PhotoAsset struct {
	SourceURL    string  `json:"source_url"`
	ProductIndex int     `json:"product_index"`
	PhotoIndex   int     `json:"photo_index"`
	LocalPath    *string `json:"local_path"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// StringOrEmpty dereferences s, returning "" for nil.
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
