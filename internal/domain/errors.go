package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoCachedData is returned when a fetch fails and no cache entry
	// exists to fall back to.
	ErrNoCachedData = errors.New("no cached data available")

	// ErrEngineClosed is returned by engine operations after Close.
	ErrEngineClosed = errors.New("engine is closed")
)

// UpstreamCategory classifies upstream fetch failures. The engine treats
// the error as opaque; the category only drives the client's retry policy.
type UpstreamCategory string

const (
	CategoryAuth    UpstreamCategory = "auth"
	CategoryQuota   UpstreamCategory = "quota"
	CategoryNetwork UpstreamCategory = "network"
	CategoryServer  UpstreamCategory = "server"
	CategoryRequest UpstreamCategory = "request"
	CategoryDecode  UpstreamCategory = "decode"
)

// UpstreamError is a failure reported by the reporting API client.
type UpstreamError struct {
	Category   UpstreamCategory
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s error (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s error: %v", e.Category, e.Err)
}

// Unwrap returns the underlying error
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure category is worth retrying.
// Auth, request and decode failures never resolve on retry.
func (e *UpstreamError) Retryable() bool {
	switch e.Category {
	case CategoryQuota, CategoryNetwork, CategoryServer:
		return true
	default:
		return false
	}
}

// NewUpstreamError creates a new UpstreamError
func NewUpstreamError(category UpstreamCategory, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Category: category, StatusCode: statusCode, Err: err}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return false
}
