// Package shingle turns per-recording feature sequences into fixed-length
// window vectors ("shingles") and tracks which recording each shingle came
// from.
package shingle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWindow is returned when the shingle window length is < 1.
	ErrInvalidWindow = errors.New("shingle: window length must be >= 1")

	// ErrNoFrames is returned when a feature sequence has no frames.
	ErrNoFrames = errors.New("shingle: feature sequence has no frames")
)

// FeatureSequence is the ordered sequence of D-dimensional feature frames for
// one recording. It is immutable once constructed.
type FeatureSequence struct {
	id     string
	frames [][]float32
	dim    int
}

// NewFeatureSequence creates a feature sequence from per-frame vectors.
// All frames must share the same dimensionality.
func NewFeatureSequence(id string, frames [][]float32) (*FeatureSequence, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	dim := len(frames[0])
	copied := make([][]float32, len(frames))
	for i, f := range frames {
		if len(f) != dim {
			return nil, fmt.Errorf("shingle: frame %d has dimension %d, want %d", i, len(f), dim)
		}
		copied[i] = make([]float32, dim)
		copy(copied[i], f)
	}

	return &FeatureSequence{id: id, frames: copied, dim: dim}, nil
}

// ID returns the recording identifier.
func (s *FeatureSequence) ID() string { return s.id }

// Len returns the number of frames.
func (s *FeatureSequence) Len() int { return len(s.frames) }

// Dim returns the per-frame dimensionality.
func (s *FeatureSequence) Dim() int { return s.dim }

// Frame returns the frame at position t.
func (s *FeatureSequence) Frame(t int) []float32 { return s.frames[t] }

// Generate slides a window of the given length over s with hop 1 and returns
// one flattened vector per window position: shingle i is the concatenation of
// frames [i, i+window). A sequence shorter than the window yields an empty
// result, not an error.
func Generate(s *FeatureSequence, window int) ([][]float32, error) {
	if window < 1 {
		return nil, ErrInvalidWindow
	}

	n := s.Len() - window + 1
	if n < 0 {
		n = 0
	}

	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, 0, window*s.dim)
		for t := i; t < i+window; t++ {
			v = append(v, s.frames[t]...)
		}
		out[i] = v
	}

	return out, nil
}

// Collection accumulates shingles from multiple recordings together with a
// parallel provenance array (recording id per shingle). It is append-only
// while the corpus is loaded and must not be mutated afterwards.
type Collection struct {
	window  int
	dim     int // shingle dimensionality (window * frame dim)
	vectors [][]float32
	sources []string
}

// NewCollection creates an empty collection for the given window length.
func NewCollection(window int) (*Collection, error) {
	if window < 1 {
		return nil, ErrInvalidWindow
	}
	return &Collection{window: window}, nil
}

// Add shingles a feature sequence and appends the result. It returns the
// number of shingles contributed; a sequence shorter than the window
// contributes zero.
func (c *Collection) Add(s *FeatureSequence) (int, error) {
	dim := c.window * s.Dim()
	if c.dim == 0 {
		c.dim = dim
	} else if dim != c.dim {
		return 0, fmt.Errorf("shingle: recording %q yields dimension %d, collection has %d", s.ID(), dim, c.dim)
	}

	vecs, err := Generate(s, c.window)
	if err != nil {
		return 0, err
	}

	c.vectors = append(c.vectors, vecs...)
	for range vecs {
		c.sources = append(c.sources, s.ID())
	}

	return len(vecs), nil
}

// Window returns the window length.
func (c *Collection) Window() int { return c.window }

// Dim returns the shingle dimensionality, or 0 before the first Add.
func (c *Collection) Dim() int { return c.dim }

// Len returns the number of shingles.
func (c *Collection) Len() int { return len(c.vectors) }

// Vectors returns the shingle vectors in insertion order.
// The returned slice is shared; callers must not mutate it.
func (c *Collection) Vectors() [][]float32 { return c.vectors }

// Sources returns the recording id for each shingle, parallel to Vectors.
// The returned slice is shared; callers must not mutate it.
func (c *Collection) Sources() []string { return c.sources }
