package extract

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/wbscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var testBase, _ = url.Parse("https://www.wildberries.ru/catalog/123/detail.aspx")

const productHTML = `<html><body>
<div class="product-page">
  <span id="productNmId">123456</span>
  <div class="product-page__header">
    <a href="/brands/pampers">Pampers</a>
    <h1>Подгузники Active Baby</h1>
  </div>
  %PRICE%
</div>
</body></html>`

const detailsHTML = `<html><body>
<div class="popup-product-details">
  <table>
    <tr><th>Цвет</th><td>белый</td></tr>
    <tr><th>Количество предметов в упаковке</th><td>52 шт.</td></tr>
  </table>
  <table>
    <tr><th>Тип подгузников</th><td>трусики</td></tr>
    <tr><th>Весовая группа</th><td>9-14 кг</td></tr>
    <tr><th>Страна производства</th><td>Россия</td></tr>
  </table>
  <table>
    <tr><th>Длина упаковки</th><td>38 см</td></tr>
    <tr><th>Высота упаковки</th><td>25 см</td></tr>
    <tr><th>Ширина упаковки</th><td>20 см</td></tr>
  </table>
  <section class="product-details__description"><p>Мягкие и тонкие.</p></section>
</div>
</body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestProductHeader(t *testing.T) {
	page := strings.Replace(productHTML, "%PRICE%",
		`<ins class="price-block__final-price">1`+" "+`234&nbsp;₽</ins>`, 1)
	rec := &types.ProductRecord{URL: testBase.String(), Index: 1}
	New(testLogger).ProductHeader(parse(t, page), rec)

	if got := types.StringOrEmpty(rec.ArticleID); got != "123456" {
		t.Errorf("article = %q", got)
	}
	if got := types.StringOrEmpty(rec.Brand); got != "Pampers" {
		t.Errorf("brand = %q", got)
	}
	if got := types.StringOrEmpty(rec.Name); got != "Подгузники Active Baby" {
		t.Errorf("name = %q", got)
	}
	if rec.Price == nil || *rec.Price != 1234 {
		t.Errorf("price = %v, want 1234", rec.Price)
	}
}

func TestProductHeaderMissingPriceIsIsolated(t *testing.T) {
	page := strings.Replace(productHTML, "%PRICE%", "", 1)
	rec := &types.ProductRecord{URL: testBase.String(), Index: 1}
	New(testLogger).ProductHeader(parse(t, page), rec)

	if rec.Price != nil {
		t.Errorf("price = %d, want nil", *rec.Price)
	}
	if rec.ArticleID == nil || rec.Brand == nil || rec.Name == nil {
		t.Errorf("other fields should be populated: %+v", rec)
	}
}

func TestProductDetails(t *testing.T) {
	rec := &types.ProductRecord{}
	New(testLogger).ProductDetails(parse(t, detailsHTML), rec)

	tests := []struct {
		field string
		got   *string
		want  string
	}{
		{"color", rec.Color, "белый"},
		{"unit_count", rec.UnitCount, "52 шт."},
		{"diaper_type", rec.DiaperType, "трусики"},
		{"weight_category", rec.WeightCategory, "9-14 кг"},
		{"producing_country", rec.ProducingCountry, "Россия"},
		{"overall_size", rec.OverallSize, "20x25x38"},
		{"description", rec.Description, "Мягкие и тонкие."},
	}
	for _, tt := range tests {
		if types.StringOrEmpty(tt.got) != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, types.StringOrEmpty(tt.got), tt.want)
		}
	}
}

func TestProductDetailsScopedToPopup(t *testing.T) {
	// a characteristics table on the page itself must not shadow the popup
	page := strings.Replace(detailsHTML, `<div class="popup-product-details">`,
		`<table><tr><th>Цвет</th><td>чёрный</td></tr></table>
<section class="product-details__description"><p>Текст страницы.</p></section>
<div class="popup-product-details">`, 1)
	rec := &types.ProductRecord{}
	New(testLogger).ProductDetails(parse(t, page), rec)

	if got := types.StringOrEmpty(rec.Color); got != "белый" {
		t.Errorf("color = %q, want the popup value", got)
	}
	if got := types.StringOrEmpty(rec.Description); got != "Мягкие и тонкие." {
		t.Errorf("description = %q, want the popup value", got)
	}
}

func TestProductDetailsPartialDimensions(t *testing.T) {
	page := strings.Replace(detailsHTML, `<tr><th>Высота упаковки</th><td>25 см</td></tr>`, "", 1)
	rec := &types.ProductRecord{}
	New(testLogger).ProductDetails(parse(t, page), rec)

	if rec.OverallSize != nil {
		t.Errorf("overall_size = %q, want nil", *rec.OverallSize)
	}
	if rec.Color == nil {
		t.Error("color should survive a missing dimension")
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"1 234 ₽", 1234, false},
		{"987 ₽", 987, false},
		{"2 500 руб.", 2500, false},
		{"", 0, true},
		{"по запросу", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrice(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestOverallSize(t *testing.T) {
	w, h, l := types.Ptr("20 см"), types.Ptr("25см"), types.Ptr("38")
	if got := OverallSize(w, h, l); got == nil || *got != "20x25x38" {
		t.Errorf("OverallSize = %v", got)
	}
	if got := OverallSize(w, nil, l); got != nil {
		t.Errorf("expected nil, got %q", *got)
	}
}

func TestProductLinks(t *testing.T) {
	page := `<html><body>
<article><div><a href="/catalog/1/detail.aspx">1</a></div></article>
<article><div><a href="https://www.wildberries.ru/catalog/2/detail.aspx">2</a></div></article>
<article><div><a>no href</a></div></article>
</body></html>`
	base, _ := url.Parse("https://www.wildberries.ru/catalog/detyam/podguzniki?page=1")
	links := ProductLinks(parse(t, page), base)
	want := []string{
		"https://www.wildberries.ru/catalog/1/detail.aspx",
		"https://www.wildberries.ru/catalog/2/detail.aspx",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v", links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		raw             string
		date, clock, tz string
	}{
		{"2024-03-01T10:00:00Z", "2024-03-01", "13:00:00", "+03:00"},
		{"2024-03-01T22:30:15Z", "2024-03-02", "01:30:15", "+03:00"},
		{"2023-12-31T23:00:00.123Z", "2024-01-01", "02:00:00", "+03:00"},
	}
	for _, tt := range tests {
		d, c, tz, err := NormalizeTimestamp(tt.raw)
		if err != nil {
			t.Errorf("NormalizeTimestamp(%q): %v", tt.raw, err)
			continue
		}
		if d != tt.date || c != tt.clock || tz != tt.tz {
			t.Errorf("NormalizeTimestamp(%q) = %s %s %s", tt.raw, d, c, tz)
		}
	}
	if _, _, _, err := NormalizeTimestamp("yesterday"); err == nil {
		t.Error("expected error for malformed stamp")
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		class   string
		want    int
		wantErr bool
	}{
		{"stars-line star5", 5, false},
		{"feedback__rating stars-line star1", 1, false},
		{"stars-line", 0, true},
		{"rating", 0, true},
		{"stars-line star9", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRating(tt.class)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRating(%q) err = %v", tt.class, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRating(%q) = %d, want %d", tt.class, got, tt.want)
		}
	}
}

const reviewHTML = `<html><body><ul class="comments__list">
<li class="comments__item">
  <div class="feedback">
    <div class="feedback__photo"></div>
    <div class="feedback__info">
      %AUTHOR%
    </div>
  </div>
  <div class="feedback__date" content="2024-03-01T10:00:00Z">1 марта</div>
  <span class="stars-line star4"></span>
  <p><span class="feedback__text--item feedback__text--item-pro">мягкие</span></p>
  <p><span class="feedback__text--item">всё отлично</span></p>
  <ul class="feedback__photos j-feedback-photos-scroll">
    <li><img src="//feedback.wbbasket.ru/vol1/photos/ms.webp"></li>
    <li><img data-src="https://feedback.wbbasket.ru/vol1/photos/2/fs.webp"></li>
  </ul>
</li>
</ul></body></html>`

func reviewNode(t *testing.T, author string) *html.Node {
	t.Helper()
	doc := parse(t, strings.Replace(reviewHTML, "%AUTHOR%", author, 1))
	nodes := ReviewNodes.Nodes(doc)
	if len(nodes) != 1 {
		t.Fatalf("review nodes = %d", len(nodes))
	}
	return nodes[0]
}

func TestReview(t *testing.T) {
	node := reviewNode(t, `<div><p>Анна</p></div>`)
	rec := New(testLogger).Review(node, testBase, testBase.String(), 3)

	if rec.ProductIndex != 3 || rec.ProductRef != testBase.String() {
		t.Errorf("product link = %d %q", rec.ProductIndex, rec.ProductRef)
	}
	if got := types.StringOrEmpty(rec.AuthorName); got != "Анна" {
		t.Errorf("author = %q", got)
	}
	if types.StringOrEmpty(rec.Date) != "2024-03-01" || types.StringOrEmpty(rec.Time) != "13:00:00" ||
		types.StringOrEmpty(rec.TimezoneOffset) != "+03:00" {
		t.Errorf("date/time = %v %v %v", rec.Date, rec.Time, rec.TimezoneOffset)
	}
	if rec.Rating == nil || *rec.Rating != 4 {
		t.Errorf("rating = %v", rec.Rating)
	}
	wantText := "Достоинства: мягкие\nКомментарии: всё отлично"
	if got := types.StringOrEmpty(rec.ReviewText); got != wantText {
		t.Errorf("text = %q, want %q", got, wantText)
	}
	wantPhotos := []string{
		"https://feedback.wbbasket.ru/vol1/photos/fs.webp",
		"https://feedback.wbbasket.ru/vol1/photos/2/fs.webp",
	}
	if len(rec.PhotoURLs) != len(wantPhotos) {
		t.Fatalf("photos = %v", rec.PhotoURLs)
	}
	for i := range wantPhotos {
		if rec.PhotoURLs[i] != wantPhotos[i] {
			t.Errorf("photo[%d] = %q", i, rec.PhotoURLs[i])
		}
	}
}

func TestReviewPremiumAuthorFallback(t *testing.T) {
	node := reviewNode(t, `<div><div><p>Мария</p></div></div>`)
	rec := New(testLogger).Review(node, testBase, "ref", 1)
	if got := types.StringOrEmpty(rec.AuthorName); got != "Мария" {
		t.Errorf("author = %q, want premium fallback", got)
	}
}

func TestReviewTextAbsent(t *testing.T) {
	doc := parse(t, `<html><body><ul class="comments__list"><li>no text</li></ul></body></html>`)
	node := ReviewNodes.Nodes(doc)[0]
	if got := ReviewText(node); got != nil {
		t.Errorf("text = %q, want nil", *got)
	}
	if HasPhotos(node) {
		t.Error("node has no photos")
	}
	rec := New(testLogger).Review(node, testBase, "ref", 1)
	if rec.PhotoURLs == nil || len(rec.PhotoURLs) != 0 {
		t.Errorf("photo_urls = %v, want empty slice", rec.PhotoURLs)
	}
}

func TestGalleryPhotos(t *testing.T) {
	page := `<html><body>
<div class="popup-photos"><ul>
  <li><img src="//images.wbstatic.net/big/1/ms.webp"></li>
  <li><img data-src="https://images.wbstatic.net/big/2.jpg"></li>
  <li><img></li>
</ul></div>
<ul><li><img src="https://elsewhere/ignored.jpg"></li></ul>
</body></html>`
	photos, err := GalleryPhotos(page, testBase)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://images.wbstatic.net/big/1/fs.webp",
		"https://images.wbstatic.net/big/2.jpg",
	}
	if len(photos) != len(want) {
		t.Fatalf("photos = %v", photos)
	}
	for i := range want {
		if photos[i] != want[i] {
			t.Errorf("photo[%d] = %q", i, photos[i])
		}
	}
}

func BenchmarkReview(b *testing.B) {
	doc, _ := htmlquery.Parse(strings.NewReader(strings.Replace(reviewHTML, "%AUTHOR%", `<div><p>Анна</p></div>`, 1)))
	node := ReviewNodes.Nodes(doc)[0]
	e := New(testLogger)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Review(node, testBase, "ref", 1)
	}
}
