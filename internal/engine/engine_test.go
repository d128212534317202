package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/wbscrape/internal/catalog"
	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/fetcher"
	"github.com/IshaanNene/wbscrape/internal/media"
	"github.com/IshaanNene/wbscrape/internal/render/rendertest"
	"github.com/IshaanNene/wbscrape/internal/storage"
	"github.com/IshaanNene/wbscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	startURL      = "https://shop.test/catalog/diapers"
	detailsXPath  = `//button[contains(text(), "Все характеристики и описание")]`
	reviewsXPath  = `//a[contains(@class, "comments__btn-all") and @data-see-all="true"]`
	productFormat = "https://shop.test/catalog/%d/detail.aspx"
)

func productURL(i int) string { return fmt.Sprintf(productFormat, i) }

func productPage(i int) string {
	return fmt.Sprintf(`<html><body>
<span id="productNmId">%d000</span>
<div class="product-page__header"><a href="#">Brand%d</a><h1>Diapers %d</h1></div>
<ins class="price-block__final-price">1 50%d ₽</ins>
<button class="product-page__btn-detail">Все характеристики и описание</button>
<a class="comments__btn-all" data-see-all="true" href="#">Все отзывы</a>
</body></html>`, i, i, i, i)
}

const detailsPopup = `<html><body><div class="popup-product-details"><table>
<tr><th>Цвет</th><td>белый</td></tr>
<tr><th>Длина упаковки</th><td>38 см</td></tr>
<tr><th>Высота упаковки</th><td>25 см</td></tr>
<tr><th>Ширина упаковки</th><td>20 см</td></tr>
</table></div></body></html>`

func reviewsPage(photoSets ...[]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="comments__list">`)
	for i, photos := range photoSets {
		fmt.Fprintf(&b, `<li><div class="feedback"><div></div><div><div><p>user%d</p></div></div></div>`, i+1)
		b.WriteString(`<div class="feedback__date" content="2024-03-01T10:00:00Z"></div>`)
		if len(photos) > 0 {
			b.WriteString(`<ul class="feedback__photos j-feedback-photos-scroll">`)
			for _, p := range photos {
				fmt.Fprintf(&b, `<li><img src="%s"></li>`, p)
			}
			b.WriteString(`</ul>`)
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func catalogPage(products ...int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, i := range products {
		fmt.Fprintf(&b, `<article><div><a href="/catalog/%d/detail.aspx">p</a></div></article>`, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type fixture struct {
	cfg    *config.Config
	fake   *rendertest.Fake
	images *httptest.Server

	// wrapSink, when set, wraps the file sink handed to the orchestrator.
	wrapSink func(*storage.FileSink) storage.RecordSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/broken") {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprintf(w, "jpeg:%s", r.URL.Path)
	}))
	t.Cleanup(images.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Catalog.StartURL = startURL
	cfg.Catalog.CheckReachability = false
	cfg.Browser.DelayProfile = string(fetcher.ProfileNone)
	cfg.Browser.MaxScrollSteps = 3
	cfg.Download.Dir = filepath.Join(dir, "photos")
	cfg.Download.Concurrency = 2
	cfg.Storage.OutputDir = filepath.Join(dir, "out")
	cfg.Checkpoint.Dir = filepath.Join(dir, "checkpoints")
	cfg.HTTP.RatePerSecond = 0

	fake := rendertest.NewFake()
	page1, _ := catalog.PageURL(startURL, 1)
	fake.AddPage(page1, catalogPage(1, 2))
	for i := 1; i <= 2; i++ {
		fake.AddPage(productURL(i), productPage(i))
		fake.OnClick(productURL(i), detailsXPath, detailsPopup)
	}
	shared := images.URL + "/img/shared.jpg"
	fake.OnClick(productURL(1), reviewsXPath, reviewsPage(
		[]string{images.URL + "/img/1a.jpg", shared},
		nil,
		[]string{images.URL + "/broken/1c.jpg"},
	))
	fake.OnClick(productURL(2), reviewsXPath, reviewsPage(
		[]string{shared, images.URL + "/img/2a.jpg"},
	))

	return &fixture{cfg: cfg, fake: fake, images: images}
}

func (f *fixture) run(t *testing.T, resume bool) (*Summary, *RunContext, error) {
	t.Helper()
	rc := NewRunContext(f.cfg, testLogger)

	client, err := fetcher.NewHTTPClient(f.cfg.HTTP, fetcher.NoRetry, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	sink, err := storage.NewFileSink(f.cfg.ProductsPath(), f.cfg.ReviewsPath(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	index, err := storage.NewPhotoIndex(f.cfg.PhotoIndexPath(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	var recordSink storage.RecordSink = sink
	if f.wrapSink != nil {
		recordSink = f.wrapSink(sink)
	}
	o, err := New(rc, Deps{Renderer: f.fake, Client: client, Sink: recordSink, PhotoIndex: index})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := o.Run(context.Background(), startURL, resume)
	return summary, rc, err
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

func TestRunInlineDownload(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.Mode = DownloadInline

	summary, _, err := f.run(t, false)
	if err != nil {
		t.Fatal(err)
	}

	products, err := storage.ReadProducts(f.cfg.ProductsPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}
	p := products[0]
	if p.Index != 1 || types.StringOrEmpty(p.ArticleID) != "1000" || p.Price == nil || *p.Price != 1501 {
		t.Errorf("product 1 = %+v", p)
	}
	if types.StringOrEmpty(p.Color) != "белый" || types.StringOrEmpty(p.OverallSize) != "20x25x38" {
		t.Errorf("details = %v %v", p.Color, p.OverallSize)
	}

	reviews, err := storage.ReadReviews(f.cfg.ReviewsPath())
	if err != nil {
		t.Fatal(err)
	}
	// product 1: the photo-less review is dropped
	if len(reviews) != 3 {
		t.Fatalf("reviews = %d, want 3", len(reviews))
	}

	photos := f.cfg.Download.Dir
	for _, name := range []string{"product_1_1.jpg", "product_1_2.jpg", "product_2_2.jpg"} {
		if !exists(t, filepath.Join(photos, name)) {
			t.Errorf("missing %s", name)
		}
	}
	// the broken photo and the duplicate of the shared photo
	for _, name := range []string{"product_1_3.jpg", "product_2_1.jpg"} {
		if exists(t, filepath.Join(photos, name)) {
			t.Errorf("unexpected %s", name)
		}
	}

	if summary.PhotosDownloaded != 3 || summary.PhotosDuplicate != 1 || summary.PhotosFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if f.fake.CloseCalls != 1 {
		t.Errorf("renderer closed %d times", f.fake.CloseCalls)
	}

	raw, err := os.ReadFile(f.cfg.PhotoIndexPath())
	if err != nil {
		t.Fatal(err)
	}
	if rows := strings.Count(string(raw), "\n"); rows != 4 {
		t.Errorf("photo index lines = %d, want header + 3", rows)
	}
	if NewCheckpointManager(f.cfg.Checkpoint.Dir).HasCheckpoint() {
		t.Error("checkpoint should be removed after a complete run")
	}
}

func TestRunAfterModeReviewNaming(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.Mode = DownloadAfter
	f.cfg.Download.Naming = NamingReview

	if _, _, err := f.run(t, false); err != nil {
		t.Fatal(err)
	}

	// rows: 1 = product 1 review 1, 2 = product 1 review 3, 3 = product 2 review 1
	photos := f.cfg.Download.Dir
	for _, name := range []string{"review_1_1.jpg", "review_1_2.jpg", "review_3_2.jpg"} {
		if !exists(t, filepath.Join(photos, name)) {
			t.Errorf("missing %s", name)
		}
	}
	if exists(t, filepath.Join(photos, "review_3_1.jpg")) {
		t.Error("shared photo downloaded twice")
	}
}

func TestRunInlineReviewNamingContinuesStoreRows(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.Mode = DownloadInline
	f.cfg.Download.Naming = NamingReview

	// one row and its photo left behind by an earlier run
	if err := os.MkdirAll(filepath.Dir(f.cfg.ReviewsPath()), 0o755); err != nil {
		t.Fatal(err)
	}
	earlier := `{"product_ref":"https://shop.test/catalog/9/detail.aspx","product_index":1,"photo_urls":["https://img.test/old.jpg"]}` + "\n"
	if err := os.WriteFile(f.cfg.ReviewsPath(), []byte(earlier), 0o644); err != nil {
		t.Fatal(err)
	}
	photos := f.cfg.Download.Dir
	if err := os.MkdirAll(photos, 0o755); err != nil {
		t.Fatal(err)
	}
	oldPhoto := filepath.Join(photos, "review_1_1.jpg")
	if err := os.WriteFile(oldPhoto, []byte("earlier-run"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.run(t, false); err != nil {
		t.Fatal(err)
	}

	if got, _ := os.ReadFile(oldPhoto); string(got) != "earlier-run" {
		t.Errorf("earlier photo overwritten with %q", got)
	}
	// rows 2..4 belong to this run: row 3 holds only the broken photo and
	// row 4 starts with the shared duplicate
	for _, name := range []string{"review_2_1.jpg", "review_2_2.jpg", "review_4_2.jpg"} {
		if !exists(t, filepath.Join(photos, name)) {
			t.Errorf("missing %s", name)
		}
	}
	if got, _ := os.ReadFile(filepath.Join(photos, "review_2_1.jpg")); string(got) != "jpeg:/img/1a.jpg" {
		t.Errorf("review_2_1.jpg = %q", got)
	}
	reviews, err := storage.ReadReviews(f.cfg.ReviewsPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 4 {
		t.Errorf("store rows = %d, want 4", len(reviews))
	}
}

// rejectReviews fails AppendReviews for one product and passes everything
// else to the file sink.
type rejectReviews struct {
	*storage.FileSink
	productIndex int
}

func (s *rejectReviews) AppendReviews(ctx context.Context, recs []*types.ReviewRecord) error {
	if len(recs) > 0 && recs[0].ProductIndex == s.productIndex {
		return &types.StorageError{Backend: "test", Err: errors.New("disk full")}
	}
	return s.FileSink.AppendReviews(ctx, recs)
}

func TestRunFailedReviewAppendKeepsRowNumbering(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.Mode = DownloadInline
	f.cfg.Download.Naming = NamingReview
	f.wrapSink = func(fs *storage.FileSink) storage.RecordSink {
		return &rejectReviews{FileSink: fs, productIndex: 1}
	}

	if _, _, err := f.run(t, false); err != nil {
		t.Fatal(err)
	}

	reviews, err := storage.ReadReviews(f.cfg.ReviewsPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 1 || reviews[0].ProductIndex != 2 {
		t.Fatalf("stored reviews = %+v", reviews)
	}

	// product 2's review is store row 1; product 1's photos were never indexed by a row
	photos := f.cfg.Download.Dir
	for _, name := range []string{"review_1_1.jpg", "review_1_2.jpg"} {
		if !exists(t, filepath.Join(photos, name)) {
			t.Errorf("missing %s", name)
		}
	}
	if got, _ := os.ReadFile(filepath.Join(photos, "review_1_2.jpg")); string(got) != "jpeg:/img/2a.jpg" {
		t.Errorf("review_1_2.jpg = %q", got)
	}
	if exists(t, filepath.Join(photos, "review_2_1.jpg")) {
		t.Error("photos of unstored reviews were downloaded")
	}
}

func TestPhotoStageFromStoreDownloadsSharedPhotoOnce(t *testing.T) {
	f := newFixture(t)
	shared := f.images.URL + "/img/shared.jpg"
	sink, err := storage.NewFileSink(f.cfg.ProductsPath(), f.cfg.ReviewsPath(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.AppendReviews(context.Background(), []*types.ReviewRecord{
		{ProductRef: productURL(1), ProductIndex: 1, PhotoURLs: []string{shared}},
		{ProductRef: productURL(2), ProductIndex: 2, PhotoURLs: []string{f.images.URL + "/img/2a.jpg", shared}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	rc := NewRunContext(f.cfg, testLogger)
	client, _ := fetcher.NewHTTPClient(f.cfg.HTTP, fetcher.NoRetry, testLogger)
	d := media.NewDownloader(client, f.cfg.Download.Dir, 2, rc.Dedup, rc.Metrics, testLogger)
	stage := NewPhotoStage(d, nil, NamingReview, testLogger)

	if err := stage.FromStore(context.Background(), f.cfg.ReviewsPath()); err != nil {
		t.Fatal(err)
	}
	photos := f.cfg.Download.Dir
	for _, name := range []string{"review_1_1.jpg", "review_2_1.jpg"} {
		if !exists(t, filepath.Join(photos, name)) {
			t.Errorf("missing %s", name)
		}
	}
	if exists(t, filepath.Join(photos, "review_2_2.jpg")) {
		t.Error("shared photo downloaded twice")
	}
	if got := rc.Metrics.PhotosDuplicate.Load(); got != 1 {
		t.Errorf("duplicates = %d, want 1", got)
	}
}

func TestRunProductFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.Mode = DownloadOff
	f.fake.FailNavigation(productURL(1), types.ErrUnreachable)

	summary, _, err := f.run(t, false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ProductsFailed != 1 || summary.Products != 1 {
		t.Errorf("summary = %+v", summary)
	}
	products, _ := storage.ReadProducts(f.cfg.ProductsPath())
	if len(products) != 1 || products[0].Index != 2 {
		t.Errorf("products = %+v", products)
	}
	if f.fake.CloseCalls != 1 {
		t.Errorf("renderer closed %d times", f.fake.CloseCalls)
	}
}

func TestRunResumeSkipsProcessed(t *testing.T) {
	f := newFixture(t)
	f.cfg.Download.Mode = DownloadOff

	cm := NewCheckpointManager(f.cfg.Checkpoint.Dir)
	if err := cm.Save(&Checkpoint{
		RunID:     "previous",
		StartURL:  startURL,
		Processed: []string{productURL(1)},
		NextIndex: 2,
	}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.run(t, true); err != nil {
		t.Fatal(err)
	}
	if f.fake.NavigationCount(productURL(1)) != 0 {
		t.Error("processed product was visited again")
	}
	products, _ := storage.ReadProducts(f.cfg.ProductsPath())
	if len(products) != 1 || products[0].Index != 2 {
		t.Errorf("products = %+v", products)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	rc := NewRunContext(f.cfg, testLogger)
	client, _ := fetcher.NewHTTPClient(f.cfg.HTTP, fetcher.NoRetry, testLogger)
	sink, err := storage.NewFileSink(f.cfg.ProductsPath(), f.cfg.ReviewsPath(), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	o, err := New(rc, Deps{Renderer: f.fake, Client: client, Sink: sink})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Run(ctx, startURL, false); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if f.fake.CloseCalls != 1 {
		t.Errorf("renderer closed %d times", f.fake.CloseCalls)
	}
	if _, err := o.Run(context.Background(), startURL, false); err == nil {
		t.Error("a stopped orchestrator should not run again")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cm := NewCheckpointManager(t.TempDir())
	if cp, err := cm.Load(); err != nil || cp != nil {
		t.Fatalf("empty dir: cp = %v, err = %v", cp, err)
	}

	want := &Checkpoint{RunID: "r1", Processed: []string{"a", "b"}, NextIndex: 3, SeenPhotos: []string{"x"}}
	if err := cm.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := cm.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "r1" || got.NextIndex != 3 || len(got.Processed) != 2 || got.Timestamp.IsZero() {
		t.Errorf("checkpoint = %+v", got)
	}
	if time.Since(got.Timestamp) > time.Minute {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
	if err := cm.Clean(); err != nil || cm.HasCheckpoint() {
		t.Errorf("clean: %v", err)
	}
}
