// Package corpus holds the immutable collection of item vectors that all
// search backends operate over, plus the provenance mapping from items back
// to recordings.
package corpus

import (
	"errors"
	"fmt"
)

// ErrNoVectors is returned when a corpus is built from zero vectors.
var ErrNoVectors = errors.New("corpus: no vectors")

// Corpus is a fixed-size ordered collection of K-dimensional item vectors.
// Items are identified solely by their position. The corpus is read-only
// after construction and safe for unsynchronized concurrent reads.
type Corpus struct {
	dim  int
	n    int
	data []float32 // flat row-major storage, len == n*dim
}

// New builds a corpus from per-item vectors. All vectors must share the same
// dimensionality.
func New(vectors [][]float32) (*Corpus, error) {
	if len(vectors) == 0 {
		return nil, ErrNoVectors
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("corpus: item 0 has zero dimension")
	}

	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("corpus: item %d has dimension %d, want %d", i, len(v), dim)
		}
		data = append(data, v...)
	}

	return &Corpus{dim: dim, n: len(vectors), data: data}, nil
}

// FromFlat builds a corpus from flat row-major storage. The slice is used
// directly, not copied; the caller must not mutate it afterwards.
func FromFlat(data []float32, dim int) (*Corpus, error) {
	if dim < 1 {
		return nil, fmt.Errorf("corpus: invalid dimension %d", dim)
	}
	if len(data) == 0 {
		return nil, ErrNoVectors
	}
	if len(data)%dim != 0 {
		return nil, fmt.Errorf("corpus: data length %d is not a multiple of dimension %d", len(data), dim)
	}

	return &Corpus{dim: dim, n: len(data) / dim, data: data}, nil
}

// Len returns the number of items.
func (c *Corpus) Len() int { return c.n }

// Dim returns the item dimensionality.
func (c *Corpus) Dim() int { return c.dim }

// Vector returns a read-only view of item i. Callers must not mutate it.
func (c *Corpus) Vector(i uint32) []float32 {
	off := int(i) * c.dim
	return c.data[off : off+c.dim : off+c.dim]
}

// Data returns the flat row-major backing storage, for serialization.
// Callers must not mutate it.
func (c *Corpus) Data() []float32 { return c.data }
