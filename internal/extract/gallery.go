package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const gallerySelector = ".j-zoom-image img, li img"

// GalleryPhotos returns the product photo URLs listed in the rendered photo
// popup. Duplicates within the popup are kept; the run deduplicator decides.
func GalleryPhotos(page string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	root := doc.Selection
	if popup := GalleryPopup.Nodes(doc.Get(0)); len(popup) > 0 {
		root = doc.FindNodes(popup[0])
	}

	photos := []string{}
	root.Find(gallerySelector).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, ok = s.Attr("data-src")
		}
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		photos = append(photos, NormalizePhotoURL(base, strings.TrimSpace(src)))
	})
	return photos, nil
}
