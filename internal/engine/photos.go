package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/wbscrape/internal/media"
	"github.com/IshaanNene/wbscrape/internal/storage"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// Photo naming schemes.
const (
	NamingProduct = "product"
	NamingReview  = "review"
)

// PhotoStage turns review photo lists into download jobs, runs them and
// records every written file in the photo index.
type PhotoStage struct {
	downloader *media.Downloader
	index      *storage.PhotoIndex
	naming     string
	logger     *slog.Logger
}

// NewPhotoStage creates a PhotoStage. index may be nil.
func NewPhotoStage(d *media.Downloader, index *storage.PhotoIndex, naming string, logger *slog.Logger) *PhotoStage {
	if naming == "" {
		naming = NamingProduct
	}
	return &PhotoStage{
		downloader: d,
		index:      index,
		naming:     naming,
		logger:     logger.With("component", "photo_stage"),
	}
}

// Jobs groups reviews into download jobs. With product naming one job holds
// all photos of a product in review order; with review naming each review is
// its own job numbered from firstRow.
func (s *PhotoStage) Jobs(recs []*types.ReviewRecord, firstRow int) []media.Job {
	var jobs []media.Job
	switch s.naming {
	case NamingReview:
		for k, r := range recs {
			if len(r.PhotoURLs) == 0 {
				continue
			}
			jobs = append(jobs, media.Job{
				Prefix:     media.PrefixReview,
				Index:      firstRow + k,
				ProductURL: r.ProductRef,
				PhotoURLs:  r.PhotoURLs,
			})
		}
	default:
		pos := make(map[int]int)
		for _, r := range recs {
			if len(r.PhotoURLs) == 0 {
				continue
			}
			i, ok := pos[r.ProductIndex]
			if !ok {
				i = len(jobs)
				pos[r.ProductIndex] = i
				jobs = append(jobs, media.Job{
					Prefix:     media.PrefixProduct,
					Index:      r.ProductIndex,
					ProductURL: r.ProductRef,
				})
			}
			jobs[i].PhotoURLs = append(jobs[i].PhotoURLs, r.PhotoURLs...)
		}
	}
	return jobs
}

// Run downloads each job in turn and indexes the photos written to disk.
func (s *PhotoStage) Run(ctx context.Context, jobs []media.Job) error {
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		assets := media.Assets(job, s.downloader.DownloadProduct(ctx, job))
		s.record(job, assets)
	}
	return nil
}

func (s *PhotoStage) record(job media.Job, assets []types.PhotoAsset) {
	missing := 0
	for _, a := range assets {
		if a.LocalPath == nil {
			missing++
			continue
		}
		if s.index == nil {
			continue
		}
		if err := s.index.Add(job.Index, job.ProductURL, a.SourceURL, *a.LocalPath); err != nil {
			s.logger.Error("photo index write failed", "file", *a.LocalPath, "error", err)
		}
	}
	if missing > 0 {
		s.logger.Debug("photos without a local file", "item", job.Index, "skipped_or_failed", missing, "total", len(assets))
	}
}

// FromStore reads the persisted review store back and downloads every
// referenced photo.
func (s *PhotoStage) FromStore(ctx context.Context, reviewsPath string) error {
	recs, err := storage.ReadReviews(reviewsPath)
	if err != nil {
		return fmt.Errorf("read review store: %w", err)
	}
	jobs := s.Jobs(recs, 1)
	s.logger.Info("downloading photos from review store", "path", reviewsPath, "reviews", len(recs), "jobs", len(jobs))
	return s.Run(ctx, jobs)
}
