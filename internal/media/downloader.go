// Package media downloads photo assets and deduplicates them across a run.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/wbscrape/internal/fetcher"
	"github.com/IshaanNene/wbscrape/internal/observability"
	"github.com/IshaanNene/wbscrape/internal/types"
)

// Filename prefixes.
const (
	PrefixProduct = "product"
	PrefixReview  = "review"
)

// DownloadResult tracks a downloaded file.
type DownloadResult struct {
	URL          string        `json:"url"`
	LocalPath    string        `json:"local_path"`
	Filename     string        `json:"filename"`
	Size         int64         `json:"size"`
	ContentType  string        `json:"content_type"`
	Hash         string        `json:"hash"`
	Duration     time.Duration `json:"duration"`
	ProductIndex int           `json:"product_index"`
	PhotoIndex   int           `json:"photo_index"`
}

// Job is the photo list of one product (or one review row) to download.
type Job struct {
	Prefix     string // product or review
	Index      int    // 1-based product or review row
	ProductURL string
	PhotoURLs  []string
}

// Downloader fetches photos through a fetcher.Client into one directory.
type Downloader struct {
	client      fetcher.Client
	dir         string
	concurrency int
	dedup       *Deduplicator
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewDownloader creates a photo downloader. dedup is the run-wide seen set.
func NewDownloader(client fetcher.Client, dir string, concurrency int, dedup *Deduplicator,
	metrics *observability.Metrics, logger *slog.Logger) *Downloader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Downloader{
		client:      client,
		dir:         dir,
		concurrency: concurrency,
		dedup:       dedup,
		metrics:     metrics,
		logger:      logger.With("component", "downloader"),
	}
}

// FileName builds the deterministic name of photo j of item i. The
// extension is always .jpg.
func FileName(prefix string, i, j int) string {
	return fmt.Sprintf("%s_%d_%d.jpg", prefix, i, j)
}

// Download fetches rawURL into dir/filename after a reachability check.
// A partially written file is removed on failure.
func (d *Downloader) Download(ctx context.Context, rawURL, dir, filename string) (*DownloadResult, error) {
	start := time.Now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "filesystem", Err: err}
	}

	if err := d.client.Reachable(ctx, rawURL); err != nil {
		return nil, err
	}

	resp, err := d.client.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	localPath := filepath.Join(dir, filename)
	f, err := os.Create(localPath)
	if err != nil {
		return nil, &types.StorageError{Backend: "filesystem", Err: fmt.Errorf("create file: %w", err)}
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("write file: %w", err)}
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	result := &DownloadResult{
		URL:         rawURL,
		LocalPath:   localPath,
		Filename:    filename,
		Size:        size,
		ContentType: resp.ContentType,
		Hash:        hash,
		Duration:    time.Since(start),
	}

	d.logger.Debug("file downloaded",
		"url", rawURL,
		"path", localPath,
		"size", size,
		"hash", hash[:16],
		"duration", result.Duration,
	)
	return result, nil
}

// DownloadProduct downloads every not-yet-seen photo of job concurrently and
// waits for all of them. Individual failures are logged and never cancel the
// other downloads. Results are ordered by photo index.
func (d *Downloader) DownloadProduct(ctx context.Context, job Job) []*DownloadResult {
	prefix := job.Prefix
	if prefix == "" {
		prefix = PrefixProduct
	}

	var (
		mu      sync.Mutex
		results []*DownloadResult
		g       errgroup.Group
	)
	g.SetLimit(d.concurrency)

	for i, rawURL := range job.PhotoURLs {
		photoIndex := i + 1
		if !d.dedup.ShouldDownload(rawURL) {
			d.metrics.PhotosDuplicate.Add(1)
			d.logger.Info("duplicate photo skipped", "url", rawURL, "item", job.Index)
			continue
		}

		rawURL := rawURL
		g.Go(func() error {
			name := FileName(prefix, job.Index, photoIndex)
			res, err := d.Download(ctx, rawURL, d.dir, name)
			if err != nil {
				d.metrics.PhotosFailed.Add(1)
				d.metrics.Errors.Add(1)
				if errors.Is(err, context.Canceled) {
					d.logger.Warn("photo download cancelled", "url", rawURL)
				} else {
					d.logger.Error("photo download failed", "url", rawURL, "file", name, "error", err)
				}
				return nil
			}
			res.ProductIndex = job.Index
			res.PhotoIndex = photoIndex

			d.metrics.PhotosDownloaded.Add(1)
			d.metrics.BytesDownloaded.Add(res.Size)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].PhotoIndex < results[b].PhotoIndex })

	d.logger.Info("photos downloaded",
		"item", job.Index,
		"submitted", len(job.PhotoURLs),
		"downloaded", len(results),
	)
	return results
}

// Assets converts a job and its results into PhotoAsset values; photos that
// were skipped or failed keep a nil LocalPath.
func Assets(job Job, results []*DownloadResult) []types.PhotoAsset {
	byIndex := make(map[int]string, len(results))
	for _, r := range results {
		byIndex[r.PhotoIndex] = r.LocalPath
	}
	assets := make([]types.PhotoAsset, len(job.PhotoURLs))
	for i, u := range job.PhotoURLs {
		a := types.PhotoAsset{SourceURL: u, ProductIndex: job.Index, PhotoIndex: i + 1}
		if p, ok := byIndex[i+1]; ok {
			a.LocalPath = types.Ptr(p)
		}
		assets[i] = a
	}
	return assets
}
