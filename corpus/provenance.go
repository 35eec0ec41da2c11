package corpus

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Provenance maps corpus positions back to recording ids. It keeps one
// roaring bitmap of item positions per recording so that searches can be
// restricted to a subset of recordings without scanning the id array.
// Read-only after construction.
type Provenance struct {
	sources     []string // recording id per item
	byRecording map[string]*roaring.Bitmap
	recordings  []string // distinct ids in first-seen order
}

// NewProvenance builds the provenance index from the per-item recording ids
// (parallel to the corpus item order). The slice is used directly, not copied.
func NewProvenance(sources []string) *Provenance {
	p := &Provenance{
		sources:     sources,
		byRecording: make(map[string]*roaring.Bitmap),
	}

	for i, id := range sources {
		rb, ok := p.byRecording[id]
		if !ok {
			rb = roaring.New()
			p.byRecording[id] = rb
			p.recordings = append(p.recordings, id)
		}
		rb.Add(uint32(i))
	}

	return p
}

// Len returns the number of items tracked.
func (p *Provenance) Len() int { return len(p.sources) }

// Source returns the recording id of item i.
func (p *Provenance) Source(i uint32) string { return p.sources[i] }

// Sources returns the recording id per item, parallel to the corpus order.
// Callers must not mutate it.
func (p *Provenance) Sources() []string { return p.sources }

// Recordings returns the distinct recording ids in first-seen order.
func (p *Provenance) Recordings() []string { return p.recordings }

// Items returns the corpus positions contributed by the given recording,
// ascending. Unknown recordings yield an empty slice.
func (p *Provenance) Items(recording string) []uint32 {
	rb, ok := p.byRecording[recording]
	if !ok {
		return nil
	}
	return rb.ToArray()
}

// Filter returns a search filter that admits only items from the given
// recordings. Unknown recording ids are an error so that typos surface
// instead of silently returning nothing.
func (p *Provenance) Filter(recordings ...string) (func(id uint32) bool, error) {
	if len(recordings) == 0 {
		return nil, fmt.Errorf("corpus: no recordings given")
	}

	bitmaps := make([]*roaring.Bitmap, 0, len(recordings))
	for _, id := range recordings {
		rb, ok := p.byRecording[id]
		if !ok {
			return nil, fmt.Errorf("corpus: unknown recording %q", id)
		}
		bitmaps = append(bitmaps, rb)
	}

	merged := roaring.ParOr(0, bitmaps...)
	return merged.Contains, nil
}
