// Package engine composes catalog traversal, extraction, review collection,
// persistence and photo download into one run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/wbscrape/internal/catalog"
	"github.com/IshaanNene/wbscrape/internal/extract"
	"github.com/IshaanNene/wbscrape/internal/fetcher"
	"github.com/IshaanNene/wbscrape/internal/media"
	"github.com/IshaanNene/wbscrape/internal/pipeline"
	"github.com/IshaanNene/wbscrape/internal/render"
	"github.com/IshaanNene/wbscrape/internal/reviews"
	"github.com/IshaanNene/wbscrape/internal/storage"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// State represents the orchestrator's lifecycle state.
type State int32

const (
	StateIdle    State = 0
	StateRunning State = 1
	StateStopped State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Download modes.
const (
	DownloadAfter  = "after"
	DownloadInline = "inline"
	DownloadOff    = "off"
)

// Collection sources.
const (
	SourceReviews = "reviews"
	SourceGallery = "gallery"
)

// Deps are the external capabilities an Orchestrator drives.
type Deps struct {
	Renderer   render.Renderer
	Client     fetcher.Client
	Sink       storage.RecordSink
	PhotoIndex *storage.PhotoIndex  // optional
	Robots     catalog.RobotsPolicy // optional
}

// Orchestrator runs the end-to-end pipeline. The renderer is driven by the
// calling goroutine only.
type Orchestrator struct {
	run         *RunContext
	renderer    render.Renderer
	client      fetcher.Client
	sink        storage.RecordSink
	delay       *fetcher.HumanDelay
	paginator   *catalog.Paginator
	extractor   *extract.Extractor
	collector   *reviews.Collector
	productPipe *pipeline.Pipeline[types.ProductRecord]
	reviewPipe  *pipeline.Pipeline[types.ReviewRecord]
	photos      *PhotoStage
	checkpoint  *CheckpointManager
	logger      *slog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	processed  map[string]bool
	nextIndex  int
	reviewRows int
}

// New wires an Orchestrator for run.
func New(run *RunContext, deps Deps) (*Orchestrator, error) {
	if deps.Renderer == nil || deps.Client == nil || deps.Sink == nil {
		return nil, errors.New("engine: renderer, client and sink are required")
	}
	cfg := run.Config
	logger := run.Logger.With("component", "orchestrator")
	delay := fetcher.NewHumanDelay(fetcher.DelayProfile(cfg.Browser.DelayProfile))

	opts := []catalog.Option{catalog.WithProber(deps.Client)}
	if deps.Robots != nil && cfg.Catalog.RespectRobotsTxt {
		opts = append(opts, catalog.WithRobots(deps.Robots))
	}

	ex := extract.New(run.Logger)
	downloader := media.NewDownloader(deps.Client, cfg.Download.Dir, cfg.Download.Concurrency,
		run.Dedup, run.Metrics, run.Logger)

	o := &Orchestrator{
		run:       run,
		renderer:  deps.Renderer,
		client:    deps.Client,
		sink:      deps.Sink,
		delay:     delay,
		paginator: catalog.New(deps.Renderer, delay, cfg.Catalog, cfg.Browser.MaxScrollSteps, run.Metrics, run.Logger, opts...),
		extractor: ex,
		collector: reviews.NewCollector(deps.Renderer, ex, delay, reviews.Options{
			MaxReviews:     cfg.Collect.MaxReviews,
			PhotosOnly:     cfg.Collect.PhotosOnly,
			ScrollFraction: cfg.Collect.ReviewScrollFraction,
			MaxScrollSteps: cfg.Browser.MaxScrollSteps,
		}, run.Metrics, run.Logger),
		productPipe: pipeline.ProductPipeline(run.Logger),
		reviewPipe:  pipeline.ReviewPipeline(run.Logger),
		photos:      NewPhotoStage(downloader, deps.PhotoIndex, cfg.Download.Naming, run.Logger),
		logger:      logger,
		processed:   make(map[string]bool),
		nextIndex:   1,
	}
	if cfg.Checkpoint.Enabled {
		o.checkpoint = NewCheckpointManager(cfg.Checkpoint.Dir)
	}
	return o, nil
}

// GetState returns the current lifecycle state.
func (o *Orchestrator) GetState() State {
	return State(o.state.Load())
}

// Run collects the catalog at startURL and processes every product. Per
// product failures are logged and skipped; the renderer is released on
// every exit path.
func (o *Orchestrator) Run(ctx context.Context, startURL string, resume bool) (*Summary, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("orchestrator is in state %s, cannot run", o.GetState())
	}
	defer o.state.Store(int32(StateStopped))
	defer o.Close()

	cfg := o.run.Config
	if resume {
		if err := o.restore(startURL); err != nil {
			return nil, err
		}
	}

	o.syncReviewRows()

	o.logger.Info("run starting",
		"start_url", startURL,
		"source", cfg.Collect.Source,
		"download_mode", cfg.Download.Mode,
		"photos_only", cfg.Collect.PhotosOnly,
		"max_reviews", cfg.Collect.MaxReviews,
	)

	links, err := o.paginator.CollectProductLinks(ctx, startURL)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	if cfg.Catalog.MaxProducts > 0 && len(links) > cfg.Catalog.MaxProducts {
		links = links[:cfg.Catalog.MaxProducts]
	}
	o.logger.Info("product links collected", "count", len(links))

	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		if o.processed[link] {
			o.logger.Debug("product already processed, skipping", "url", link)
			continue
		}

		index := o.nextIndex
		o.nextIndex++
		if err := o.processProduct(ctx, link, index); err != nil {
			o.run.Metrics.ProductsFailed.Add(1)
			o.run.Metrics.Errors.Add(1)
			o.logger.Error("product failed", "index", index, "url", link, "error", err)
		}
		o.processed[link] = true
		o.save(startURL)
	}

	if ctx.Err() == nil && o.downloadMode() == DownloadAfter {
		if err := o.photos.FromStore(ctx, cfg.ReviewsPath()); err != nil {
			o.logger.Error("photo download failed", "error", err)
		}
	}

	summary := o.run.Summary()
	if err := ctx.Err(); err != nil {
		o.logger.Warn("run interrupted", "processed", len(o.processed))
		return summary, err
	}
	if o.checkpoint != nil {
		if err := o.checkpoint.Clean(); err != nil {
			o.logger.Warn("checkpoint cleanup failed", "error", err)
		}
	}

	o.logger.Info("run finished",
		"products", summary.Products,
		"products_failed", summary.ProductsFailed,
		"reviews", summary.Reviews,
		"photos_downloaded", summary.PhotosDownloaded,
		"photos_duplicate", summary.PhotosDuplicate,
		"photos_failed", summary.PhotosFailed,
		"elapsed", summary.Elapsed.Round(time.Millisecond),
	)
	return summary, nil
}

// Close releases the renderer. Only the first call has an effect.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = o.renderer.Close()
		if o.closeErr != nil {
			o.logger.Error("renderer close failed", "error", o.closeErr)
		}
	})
	return o.closeErr
}

func (o *Orchestrator) downloadMode() string {
	mode := o.run.Config.Download.Mode
	// gallery photos never reach the review store
	if o.run.Config.Collect.Source == SourceGallery && mode == DownloadAfter {
		return DownloadInline
	}
	return mode
}

// processProduct extracts one product and its reviews. A panic in any
// extraction step is converted into an error for this product only.
func (o *Orchestrator) processProduct(ctx context.Context, link string, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	cfg := o.run.Config
	logger := o.logger.With("index", index, "url", link)

	if err := o.open(ctx, link); err != nil {
		return err
	}

	if cfg.Collect.Products {
		reopen, err := o.collectProduct(ctx, link, index)
		if err != nil {
			return err
		}
		if reopen && cfg.Collect.Reviews {
			if err := o.open(ctx, link); err != nil {
				return err
			}
		}
	}

	if !cfg.Collect.Reviews {
		return nil
	}

	switch cfg.Collect.Source {
	case SourceGallery:
		photos := o.galleryPhotos(ctx, link)
		logger.Info("gallery photos found", "count", len(photos))
		if len(photos) > 0 && o.downloadMode() != DownloadOff {
			job := media.Job{Prefix: media.PrefixProduct, Index: index, ProductURL: link, PhotoURLs: photos}
			return o.photos.Run(ctx, []media.Job{job})
		}
		return nil
	default:
		recs, err := o.collector.Collect(ctx, link, index)
		if err != nil {
			return fmt.Errorf("collect reviews: %w", err)
		}
		recs = o.cleanReviews(recs)
		firstRow := o.reviewRows + 1
		stored := true
		if len(recs) > 0 {
			if err := o.sink.AppendReviews(ctx, recs); err != nil {
				logger.Error("review append failed", "error", err)
				// another backend may have failed after the file store took the rows
				o.syncReviewRows()
				stored = o.reviewRows == firstRow-1+len(recs)
			} else {
				o.run.Metrics.RecordsStored.Add(int64(len(recs)))
				o.reviewRows += len(recs)
			}
		}

		if o.downloadMode() != DownloadInline {
			return nil
		}
		if !stored && o.photos.naming == NamingReview {
			logger.Warn("review rows not stored, skipping their photos", "reviews", len(recs))
			return nil
		}
		return o.photos.Run(ctx, o.photos.Jobs(recs, firstRow))
	}
}

// open checks that link answers and loads it into the renderer.
func (o *Orchestrator) open(ctx context.Context, link string) error {
	if o.run.Config.Catalog.CheckReachability {
		if err := o.client.Reachable(ctx, link); err != nil {
			return err
		}
	}
	if err := o.renderer.Navigate(ctx, link); err != nil {
		return err
	}
	return o.delay.Wait(ctx)
}

// collectProduct extracts and stores the product record. It reports whether
// the details popup was opened, which leaves the page in a different state.
func (o *Orchestrator) collectProduct(ctx context.Context, link string, index int) (bool, error) {
	doc, err := render.Snapshot(ctx, o.renderer)
	if err != nil {
		return false, fmt.Errorf("snapshot product page: %w", err)
	}

	rec := &types.ProductRecord{Index: index, URL: link, ScrapedAt: time.Now().UTC()}
	o.extractor.ProductHeader(doc, rec)

	opened := false
	if btn, ok := extract.DetailsButton.Match(doc); ok {
		if err := o.renderer.Click(ctx, btn.XPath); err != nil {
			o.logger.Warn("details popup did not open", "url", link, "error", err)
		} else {
			opened = true
			if err := o.delay.Wait(ctx); err != nil {
				return opened, err
			}
			if popup, err := render.Snapshot(ctx, o.renderer); err != nil {
				o.logger.Warn("details snapshot failed", "url", link, "error", err)
			} else {
				o.extractor.ProductDetails(popup, rec)
			}
		}
	} else {
		o.logger.Debug("no details control", "url", link)
	}

	cleaned, err := o.productPipe.Process(rec)
	switch {
	case err != nil:
		o.logger.Warn("product cleanup failed, storing raw record", "url", link, "error", err)
	case cleaned != nil:
		rec = cleaned
	}
	if err := o.sink.AppendProduct(ctx, rec); err != nil {
		o.logger.Error("product append failed", "url", link, "error", err)
	} else {
		o.run.Metrics.RecordsStored.Add(1)
	}
	o.run.Metrics.ProductsScraped.Add(1)
	o.logger.Info("product extracted",
		"index", index,
		"article", types.StringOrEmpty(rec.ArticleID),
		"brand", types.StringOrEmpty(rec.Brand),
	)
	return opened, nil
}

// cleanReviews runs recs through the review pipeline, keeping the raw record
// when a stage fails and skipping records a stage drops.
func (o *Orchestrator) cleanReviews(recs []*types.ReviewRecord) []*types.ReviewRecord {
	out := recs[:0]
	for _, rec := range recs {
		cleaned, err := o.reviewPipe.Process(rec)
		if err != nil {
			o.logger.Warn("review cleanup failed, storing raw record", "url", rec.ProductRef, "error", err)
			out = append(out, rec)
			continue
		}
		if cleaned != nil {
			out = append(out, cleaned)
		}
	}
	return out
}

// galleryPhotos opens the product photo popup and lists its images.
func (o *Orchestrator) galleryPhotos(ctx context.Context, link string) []string {
	if err := render.ScrollFraction(ctx, o.renderer, "", o.run.Config.Collect.PhotoScrollFraction); err != nil {
		o.logger.Debug("partial scroll failed", "url", link, "error", err)
	}

	doc, err := render.Snapshot(ctx, o.renderer)
	if err != nil {
		o.logger.Warn("snapshot failed", "url", link, "error", err)
		return nil
	}
	btn, ok := extract.GalleryButton.Match(doc)
	if !ok {
		o.logger.Info("no photo gallery control", "url", link)
		return nil
	}
	if err := o.renderer.Click(ctx, btn.XPath); err != nil {
		o.logger.Warn("photo gallery did not open", "url", link, "error", err)
		return nil
	}
	if err := o.delay.Wait(ctx); err != nil {
		return nil
	}

	page, err := o.renderer.HTML(ctx)
	if err != nil {
		o.logger.Warn("gallery snapshot failed", "url", link, "error", err)
		return nil
	}
	base, _ := url.Parse(link)
	photos, err := extract.GalleryPhotos(page, base)
	if err != nil {
		o.logger.Warn("gallery parse failed", "url", link, "error", err)
		return nil
	}
	return photos
}

func (o *Orchestrator) restore(startURL string) error {
	if o.checkpoint == nil {
		return errors.New("resume requested but checkpoints are disabled")
	}
	cp, err := o.checkpoint.Load()
	if err != nil {
		return err
	}
	if cp == nil {
		o.logger.Info("no checkpoint found, starting fresh")
		return nil
	}
	if cp.StartURL != "" && cp.StartURL != startURL {
		o.logger.Warn("checkpoint was taken for another start url", "checkpoint", cp.StartURL, "start_url", startURL)
	}

	for _, u := range cp.Processed {
		o.processed[u] = true
	}
	if cp.NextIndex > 0 {
		o.nextIndex = cp.NextIndex
	}
	o.reviewRows = cp.ReviewRows
	o.run.Dedup.Import(cp.SeenPhotos)

	o.logger.Info("resuming from checkpoint",
		"previous_run", cp.RunID,
		"processed", len(cp.Processed),
		"next_index", o.nextIndex,
		"seen_photos", len(cp.SeenPhotos),
	)
	return nil
}

// syncReviewRows sets the review row counter from the review store so that
// review-named photos continue the store's numbering across runs.
func (o *Orchestrator) syncReviewRows() {
	path := o.run.Config.ReviewsPath()
	n, err := storage.CountRecords(path)
	if err != nil {
		o.logger.Warn("review store count failed, keeping row counter", "path", path, "rows", o.reviewRows, "error", err)
		return
	}
	if n != o.reviewRows {
		o.logger.Debug("review row counter synced", "path", path, "from", o.reviewRows, "to", n)
	}
	o.reviewRows = n
}

func (o *Orchestrator) save(startURL string) {
	if o.checkpoint == nil {
		return
	}
	processed := make([]string, 0, len(o.processed))
	for u := range o.processed {
		processed = append(processed, u)
	}
	cp := &Checkpoint{
		RunID:      o.run.ID,
		StartURL:   startURL,
		Processed:  processed,
		NextIndex:  o.nextIndex,
		ReviewRows: o.reviewRows,
		SeenPhotos: o.run.Dedup.Export(),
		Stats:      o.run.Metrics.Snapshot(),
	}
	if err := o.checkpoint.Save(cp); err != nil {
		o.logger.Error("checkpoint save failed", "error", err)
	}
}
