// Package storage persists product and review records.
package storage

import (
	"context"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// RecordSink is the interface for all record backends. Appends are
// incremental: a store holds every appended record, in append order,
// exactly once.
type RecordSink interface {
	// AppendProduct persists one product record.
	AppendProduct(ctx context.Context, rec *types.ProductRecord) error

	// AppendReviews persists the reviews of one product.
	AppendReviews(ctx context.Context, recs []*types.ReviewRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}
