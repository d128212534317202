package reviews

import (
	"net/url"

	"golang.org/x/net/html"

	"github.com/IshaanNene/wbscrape/internal/extract"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// extract walks the review nodes of doc. Photo-less reviews are dropped
// without counting against the cap when PhotosOnly is set; nodes after the
// cap is reached are never inspected.
func (c *Collector) extract(doc *html.Node, base *url.URL, productRef string, productIndex int) []*types.ReviewRecord {
	nodes := extract.ReviewNodes.Nodes(doc)
	records := make([]*types.ReviewRecord, 0, min(len(nodes), max(c.opts.MaxReviews, 0)))

	skipped := 0
	for _, node := range nodes {
		if c.opts.MaxReviews > 0 && len(records) >= c.opts.MaxReviews {
			break
		}
		if c.opts.PhotosOnly && !extract.HasPhotos(node) {
			skipped++
			continue
		}
		records = append(records, c.extractor.Review(node, base, productRef, productIndex))
	}

	c.metrics.ReviewsScraped.Add(int64(len(records)))
	c.metrics.ReviewsSkipped.Add(int64(skipped))
	c.logger.Info("reviews collected",
		"product", productRef,
		"nodes", len(nodes),
		"collected", len(records),
		"skipped_without_photos", skipped,
	)
	return records
}
