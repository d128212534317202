package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrElementNotFound = errors.New("element not found")
	ErrUnreachable     = errors.New("resource unreachable")
	ErrBlocked         = errors.New("blocked by robots.txt")
	ErrRendererClosed  = errors.New("renderer has been closed")
	ErrMaxRetries      = errors.New("max retries exceeded")
	ErrNoCards         = errors.New("no product cards on page")
)

// FetchError wraps errors that occur during HTTP transfers.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// RenderError wraps errors raised by the page renderer.
type RenderError struct {
	Op        string
	Target    string
	Err       error
	Retryable bool
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %q: %v", e.Op, e.Target, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur while extracting a field.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during persistence.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised by a record cleanup stage.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is marked retryable anywhere in its chain.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}
