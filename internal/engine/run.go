package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/wbscrape/internal/config"
	"github.com/IshaanNene/wbscrape/internal/media"
	"github.com/IshaanNene/wbscrape/internal/observability"
)

// RunContext carries the state shared by every component of one run.
type RunContext struct {
	ID        string
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Dedup     *media.Deduplicator
	StartedAt time.Time
}

// NewRunContext creates a run with a fresh ID and an empty photo seen-set.
func NewRunContext(cfg *config.Config, logger *slog.Logger) *RunContext {
	id := uuid.NewString()
	logger = logger.With("run_id", id)
	return &RunContext{
		ID:        id,
		Config:    cfg,
		Logger:    logger,
		Metrics:   observability.NewMetrics(logger),
		Dedup:     media.NewDeduplicator(4096),
		StartedAt: time.Now(),
	}
}

// Summary is the end-of-run report.
type Summary struct {
	RunID            string        `json:"run_id"`
	ProductLinks     int64         `json:"product_links"`
	Products         int64         `json:"products"`
	ProductsFailed   int64         `json:"products_failed"`
	Reviews          int64         `json:"reviews"`
	PhotosDownloaded int64         `json:"photos_downloaded"`
	PhotosDuplicate  int64         `json:"photos_duplicate"`
	PhotosFailed     int64         `json:"photos_failed"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Summary reports the run's counters so far.
func (rc *RunContext) Summary() *Summary {
	m := rc.Metrics
	return &Summary{
		RunID:            rc.ID,
		ProductLinks:     m.ProductLinks.Load(),
		Products:         m.ProductsScraped.Load(),
		ProductsFailed:   m.ProductsFailed.Load(),
		Reviews:          m.ReviewsScraped.Load(),
		PhotosDownloaded: m.PhotosDownloaded.Load(),
		PhotosDuplicate:  m.PhotosDuplicate.Load(),
		PhotosFailed:     m.PhotosFailed.Load(),
		Elapsed:          time.Since(rc.StartedAt),
	}
}
