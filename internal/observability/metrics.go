package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for one scraping run.
type Metrics struct {
	// Catalog metrics
	PagesVisited atomic.Int64
	ProductLinks atomic.Int64

	// Record metrics
	ProductsScraped atomic.Int64
	ProductsFailed  atomic.Int64
	ReviewsScraped  atomic.Int64
	ReviewsSkipped  atomic.Int64
	RecordsStored   atomic.Int64

	// Photo metrics
	PhotosDownloaded atomic.Int64
	PhotosDuplicate  atomic.Int64
	PhotosFailed     atomic.Int64
	BytesDownloaded  atomic.Int64

	// Transport metrics
	RequestsTotal   atomic.Int64
	RequestsRetried atomic.Int64
	Errors          atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"wbscrape_pages_visited_total", "Catalog pages visited", m.PagesVisited.Load()},
		{"wbscrape_product_links_total", "Product links collected", m.ProductLinks.Load()},
		{"wbscrape_products_scraped_total", "Product records extracted", m.ProductsScraped.Load()},
		{"wbscrape_products_failed_total", "Products abandoned after an error", m.ProductsFailed.Load()},
		{"wbscrape_reviews_scraped_total", "Review records extracted", m.ReviewsScraped.Load()},
		{"wbscrape_reviews_skipped_total", "Reviews dropped by the photo filter", m.ReviewsSkipped.Load()},
		{"wbscrape_records_stored_total", "Records appended to the sinks", m.RecordsStored.Load()},
		{"wbscrape_photos_downloaded_total", "Photos written to disk", m.PhotosDownloaded.Load()},
		{"wbscrape_photos_duplicate_total", "Photo URLs skipped as already seen", m.PhotosDuplicate.Load()},
		{"wbscrape_photos_failed_total", "Photo downloads that failed", m.PhotosFailed.Load()},
		{"wbscrape_bytes_downloaded_total", "Photo bytes written", m.BytesDownloaded.Load()},
		{"wbscrape_requests_total", "HTTP requests made", m.RequestsTotal.Load()},
		{"wbscrape_requests_retried_total", "HTTP and render operations retried", m.RequestsRetried.Load()},
		{"wbscrape_errors_total", "Errors logged and skipped", m.Errors.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer serves the metrics endpoint until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_visited":     m.PagesVisited.Load(),
		"product_links":     m.ProductLinks.Load(),
		"products_scraped":  m.ProductsScraped.Load(),
		"products_failed":   m.ProductsFailed.Load(),
		"reviews_scraped":   m.ReviewsScraped.Load(),
		"reviews_skipped":   m.ReviewsSkipped.Load(),
		"records_stored":    m.RecordsStored.Load(),
		"photos_downloaded": m.PhotosDownloaded.Load(),
		"photos_duplicate":  m.PhotosDuplicate.Load(),
		"photos_failed":     m.PhotosFailed.Load(),
		"bytes_downloaded":  m.BytesDownloaded.Load(),
		"requests_total":    m.RequestsTotal.Load(),
		"requests_retried":  m.RequestsRetried.Load(),
		"errors":            m.Errors.Load(),
	}
}
