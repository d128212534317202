package storage

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/IshaanNene/wbscrape/internal/types"
)

var photoIndexHeader = []string{"index", "product_url", "photo_url", "local_path"}

// PhotoIndex streams one ';'-separated row per downloaded photo.
type PhotoIndex struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewPhotoIndex opens path for appending. The header row is written only
// when the file is new or empty.
func NewPhotoIndex(path string, logger *slog.Logger) (*PhotoIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("create output dir: %w", err)}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: err}
	}
	w := csv.NewWriter(f)
	w.Comma = ';'

	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		if err := w.Write(photoIndexHeader); err != nil {
			f.Close()
			return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("write CSV header: %w", err)}
		}
		w.Flush()
	}

	return &PhotoIndex{
		path:   path,
		file:   f,
		writer: w,
		logger: logger.With("component", "photo_index"),
	}, nil
}

// Add writes one row and flushes it.
func (p *PhotoIndex) Add(index int, productURL, photoURL, localPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	row := []string{strconv.Itoa(index), productURL, photoURL, localPath}
	if err := p.writer.Write(row); err != nil {
		return &types.StorageError{Backend: "csv", Err: fmt.Errorf("write CSV row: %w", err)}
	}
	p.writer.Flush()
	if err := p.writer.Error(); err != nil {
		return &types.StorageError{Backend: "csv", Err: err}
	}
	p.count++
	return nil
}

// Close flushes and closes the index file.
func (p *PhotoIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("photo index written", "path", p.path, "rows", p.count)
	p.writer.Flush()
	return p.file.Close()
}
