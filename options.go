package shindex

import (
	"log/slog"

	"github.com/hupe1980/shindex/index/exact"
	"github.com/hupe1980/shindex/index/hnsw"
	"github.com/hupe1980/shindex/index/kdtree"
	"github.com/hupe1980/shindex/persistence"
)

// DefaultTargetDim is the default item dimensionality shingles are projected
// to before indexing.
const DefaultTargetDim = 30

type options struct {
	targetDim    int
	exactOptions []func(*exact.Options)
	kdOptions    []func(*kdtree.Options)
	hnswOptions  []func(*hnsw.Options)
	compression  persistence.CompressionType
	logger       *Logger
}

// Option configures the facade constructors.
type Option func(*options)

// WithTargetDim sets the item dimensionality K the PCA projector reduces
// shingles to. Values <= 0, or values at or above the shingle dimensionality,
// disable projection.
func WithTargetDim(k int) Option {
	return func(o *options) {
		o.targetDim = k
	}
}

// WithExact forwards options to the exact backend.
func WithExact(fn func(o *exact.Options)) Option {
	return func(o *options) {
		o.exactOptions = append(o.exactOptions, fn)
	}
}

// WithKDTree forwards options to the KD-tree backend
// (e.g. the leaf bucket threshold).
func WithKDTree(fn func(o *kdtree.Options)) Option {
	return func(o *options) {
		o.kdOptions = append(o.kdOptions, fn)
	}
}

// WithHNSW forwards options to the HNSW backend
// (M, EFConstruction, EF, Heuristic, Seed).
func WithHNSW(fn func(o *hnsw.Options)) Option {
	return func(o *options) {
		o.hnswOptions = append(o.hnswOptions, fn)
	}
}

// WithCompression selects the snapshot payload codec.
func WithCompression(c persistence.CompressionType) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		targetDim:   DefaultTargetDim,
		compression: persistence.DefaultOptions.Compression,
		logger:      NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
