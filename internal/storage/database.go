package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// MongoSink writes products and reviews to two MongoDB collections.
type MongoSink struct {
	client   *mongo.Client
	products *mongo.Collection
	reviews  *mongo.Collection
	mu       sync.Mutex
	count    int
	logger   *slog.Logger
}

// NewMongoSink connects to uri and uses the products and reviews collections of database.
func NewMongoSink(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	db := client.Database(database)
	return &MongoSink{
		client:   client,
		products: db.Collection("products"),
		reviews:  db.Collection("reviews"),
		logger:   logger.With("component", "mongo_sink"),
	}, nil
}

func (s *MongoSink) Name() string { return "mongodb" }

func (s *MongoSink) AppendProduct(ctx context.Context, rec *types.ProductRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.products.InsertOne(ctx, rec); err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("insert product: %w", err)}
	}
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

func (s *MongoSink) AppendReviews(ctx context.Context, recs []*types.ReviewRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, len(recs))
	for i, r := range recs {
		docs[i] = r
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.reviews.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("insert reviews: %w", err)}
	}
	s.mu.Lock()
	s.count += len(recs)
	s.mu.Unlock()
	s.logger.Debug("reviews stored in mongodb", "count", len(recs))
	return nil
}

func (s *MongoSink) Close() error {
	s.logger.Info("mongodb sink closing", "total_records", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Sink Fan-Out ---

// MultiSink writes records to several backends. A failing backend is logged
// and does not stop the others.
type MultiSink struct {
	backends []RecordSink
	logger   *slog.Logger
}

// NewMultiSink creates a sink that fans out to backends.
func NewMultiSink(backends []RecordSink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		backends: backends,
		logger:   logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

func (s *MultiSink) AppendProduct(ctx context.Context, rec *types.ProductRecord) error {
	return s.each(func(b RecordSink) error { return b.AppendProduct(ctx, rec) })
}

func (s *MultiSink) AppendReviews(ctx context.Context, recs []*types.ReviewRecord) error {
	return s.each(func(b RecordSink) error { return b.AppendReviews(ctx, recs) })
}

func (s *MultiSink) each(fn func(RecordSink) error) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := fn(backend); err != nil {
			s.logger.Error("backend append failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiSink) Close() error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		}
	}
	return errors.Join(errs...)
}
