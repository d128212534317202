package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware[T any] interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *T) (*T, error)
}

// Pipeline chains middleware processors together.
type Pipeline[T any] struct {
	middlewares []Middleware[T]
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New[T any](logger *slog.Logger) *Pipeline[T] {
	return &Pipeline[T]{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline[T]) Use(mw Middleware[T]) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline[T]) Process(rec *T) (*T, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{Stage: mw.Name(), Err: err}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name())
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline[T]) Len() int {
	return len(p.middlewares)
}

// ProductPipeline returns the cleanup chain applied to every product before it is stored.
func ProductPipeline(logger *slog.Logger) *Pipeline[types.ProductRecord] {
	p := New[types.ProductRecord](logger)
	p.Use(NewProductSanitizer())
	p.logger.Debug("product pipeline ready", "stages", p.Len())
	return p
}

// ReviewPipeline returns the cleanup chain applied to every review before it is stored.
func ReviewPipeline(logger *slog.Logger) *Pipeline[types.ReviewRecord] {
	p := New[types.ReviewRecord](logger)
	p.Use(NewReviewSanitizer())
	p.logger.Debug("review pipeline ready", "stages", p.Len())
	return p
}
