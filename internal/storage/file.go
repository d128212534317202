package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// jsonlFile is one append-only newline-delimited JSON store.
type jsonlFile struct {
	path  string
	file  *os.File
	enc   *json.Encoder
	count int
}

func openJSONL(path string) (*jsonlFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &jsonlFile{path: path, file: f, enc: enc}, nil
}

func (j *jsonlFile) append(v any) error {
	if err := j.enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSONL: %w", err)
	}
	j.count++
	return nil
}

// FileSink writes products and reviews to two JSONL stores. Each append
// goes straight to the file; nothing is buffered across calls.
type FileSink struct {
	products *jsonlFile
	reviews  *jsonlFile
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewFileSink opens (creating when absent) the product and review stores.
func NewFileSink(productsPath, reviewsPath string, logger *slog.Logger) (*FileSink, error) {
	products, err := openJSONL(productsPath)
	if err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: err}
	}
	reviews, err := openJSONL(reviewsPath)
	if err != nil {
		products.file.Close()
		return nil, &types.StorageError{Backend: "jsonl", Err: err}
	}
	return &FileSink{
		products: products,
		reviews:  reviews,
		logger:   logger.With("component", "jsonl_sink"),
	}, nil
}

func (s *FileSink) Name() string { return "jsonl" }

func (s *FileSink) AppendProduct(_ context.Context, rec *types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.products.append(rec); err != nil {
		return &types.StorageError{Backend: "jsonl", Err: err}
	}
	return nil
}

func (s *FileSink) AppendReviews(_ context.Context, recs []*types.ReviewRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if r.PhotoURLs == nil {
			r.PhotoURLs = []string{}
		}
		if err := s.reviews.append(r); err != nil {
			return &types.StorageError{Backend: "jsonl", Err: err}
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("JSONL written",
		"products_path", s.products.path, "products", s.products.count,
		"reviews_path", s.reviews.path, "reviews", s.reviews.count,
	)
	return errors.Join(s.products.file.Close(), s.reviews.file.Close())
}

// CountRecords returns the number of records in a JSONL store. A missing
// store holds zero records.
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &types.StorageError{Backend: "jsonl", Err: err}
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, &types.StorageError{Backend: "jsonl", Err: err}
	}
	return n, nil
}

// ReadProducts reads a product store back in append order.
func ReadProducts(path string) ([]*types.ProductRecord, error) {
	return readJSONL[types.ProductRecord](path)
}

// ReadReviews reads a review store back in append order.
func ReadReviews(path string) ([]*types.ReviewRecord, error) {
	return readJSONL[types.ReviewRecord](path)
}

func readJSONL[T any](path string) ([]*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.StorageError{Backend: "jsonl", Err: err}
	}
	defer f.Close()

	var out []*T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		v := new(T)
		if err := json.Unmarshal(sc.Bytes(), v); err != nil {
			return out, &types.StorageError{Backend: "jsonl", Err: fmt.Errorf("%s:%d: %w", path, line, err)}
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return out, &types.StorageError{Backend: "jsonl", Err: err}
	}
	return out, nil
}
