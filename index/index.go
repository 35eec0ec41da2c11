// Package index defines the query contract shared by all search backends.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrEmptyCorpus is returned when an index build is attempted on zero items.
// Build failures are fatal: no partially-built index is observable.
var ErrEmptyCorpus = errors.New("index: empty corpus")

// ErrDimensionMismatch is a named error type for query/item dimension
// disagreement. It is fatal to the query, not to the index.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidParameter is a named error type for build or query parameters
// rejected before any work is done.
type ErrInvalidParameter struct {
	Name   string
	Reason string
}

// Error returns the error message for an invalid parameter.
func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Name, e.Reason)
}

// SearchResult represents a single search result.
type SearchResult struct {
	// ID is the corpus position of the matched item.
	ID uint32

	// Distance is the Euclidean distance between the query and the item.
	Distance float32
}

// SearchOptions tunes a single search call.
type SearchOptions struct {
	// EF overrides the candidate-list size for approximate backends.
	// Ignored by exact backends. Values below k are raised to k.
	EF int

	// Filter restricts results to items for which it returns true.
	// Filtering happens during traversal, not as a post-pass.
	Filter func(id uint32) bool
}

// Index is the read-only query interface implemented by every backend.
// Implementations are immutable after build and safe for unsynchronized
// concurrent searches.
type Index interface {
	// Search returns the k nearest items to q, ascending by distance.
	// k greater than the corpus size is clamped, not an error.
	Search(ctx context.Context, q []float32, k int, opts *SearchOptions) ([]SearchResult, error)

	// Len returns the number of indexed items.
	Len() int

	// Dim returns the item dimensionality.
	Dim() int
}

// ValidateK rejects non-positive neighbor counts.
func ValidateK(k int) error {
	if k < 1 {
		return &ErrInvalidParameter{Name: "k", Reason: fmt.Sprintf("must be >= 1, got %d", k)}
	}
	return nil
}

// ValidateQuery rejects queries whose dimensionality differs from the corpus.
func ValidateQuery(dim int, q []float32) error {
	if len(q) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(q)}
	}
	return nil
}

// ClampK bounds k by the corpus size.
func ClampK(k, n int) int {
	if k > n {
		return n
	}
	return k
}

// SortResults orders results ascending by (distance, id).
func SortResults(res []SearchResult) {
	sort.Slice(res, func(i, j int) bool {
		if res[i].Distance != res[j].Distance {
			return res[i].Distance < res[j].Distance
		}
		return res[i].ID < res[j].ID
	})
}
