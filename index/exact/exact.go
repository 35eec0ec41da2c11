// Package exact implements the brute-force search backend. It is the
// correctness oracle the other backends are checked against.
package exact

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/internal/math32"
	"github.com/hupe1980/shindex/internal/queue"
)

// Compile-time check to ensure Exact satisfies the index interface.
var _ index.Index = (*Exact)(nil)

// Options contains configuration options for the exact backend.
type Options struct {
	// Parallelism is the number of scan workers. Values <= 1 disable the
	// parallel path. Defaults to GOMAXPROCS.
	Parallelism int

	// MinParallel is the corpus size below which the scan stays
	// single-threaded; fan-out overhead dominates on small corpora.
	MinParallel int
}

// DefaultOptions contains the default configuration options for the exact
// backend.
var DefaultOptions = Options{
	Parallelism: 0, // resolved to GOMAXPROCS in New
	MinParallel: 4096,
}

// Exact scans the full corpus per query, O(N*K).
type Exact struct {
	c    *corpus.Corpus
	opts Options
}

// New creates an exact backend over the given corpus.
func New(c *corpus.Corpus, optFns ...func(o *Options)) (*Exact, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if c == nil || c.Len() == 0 {
		return nil, index.ErrEmptyCorpus
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	if opts.MinParallel < 1 {
		return nil, &index.ErrInvalidParameter{Name: "MinParallel", Reason: fmt.Sprintf("must be >= 1, got %d", opts.MinParallel)}
	}

	return &Exact{c: c, opts: opts}, nil
}

// Len returns the number of indexed items.
func (e *Exact) Len() int { return e.c.Len() }

// Dim returns the item dimensionality.
func (e *Exact) Dim() int { return e.c.Dim() }

// Search returns the k nearest items to q, ascending by distance with ties
// broken by ascending id.
func (e *Exact) Search(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if err := index.ValidateQuery(e.c.Dim(), q); err != nil {
		return nil, err
	}

	k = index.ClampK(k, e.c.Len())

	var filter func(uint32) bool
	if opts != nil {
		filter = opts.Filter
	}

	n := e.c.Len()
	workers := e.opts.Parallelism
	if workers > 1 && n >= e.opts.MinParallel {
		return e.searchParallel(ctx, q, k, filter, workers)
	}

	best := queue.NewMax(k)
	e.scanRange(q, 0, uint32(n), filter, best, k)
	return drain(best), nil
}

// searchParallel fans the scan out over chunks and merges the per-chunk
// top-k sets. The merge is deterministic, so parallel and sequential scans
// return identical results.
func (e *Exact) searchParallel(ctx context.Context, q []float32, k int, filter func(uint32) bool, workers int) ([]index.SearchResult, error) {
	n := uint32(e.c.Len())
	chunk := (n + uint32(workers) - 1) / uint32(workers)

	partials := make([]*queue.Queue, workers)

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := uint32(w) * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}

		best := queue.NewMax(k)
		partials[w] = best

		g.Go(func() error {
			e.scanRange(q, start, end, filter, best, k)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := queue.NewMax(k)
	for _, p := range partials {
		if p == nil {
			continue
		}
		for {
			item, ok := p.Pop()
			if !ok {
				break
			}
			merged.PushBounded(item, k)
		}
	}

	return drain(merged), nil
}

func (e *Exact) scanRange(q []float32, start, end uint32, filter func(uint32) bool, best *queue.Queue, k int) {
	for id := start; id < end; id++ {
		if filter != nil && !filter(id) {
			continue
		}
		d := math32.SquaredL2(q, e.c.Vector(id))
		best.PushBounded(queue.Item{ID: id, Distance: d}, k)
	}
}

// drain empties a max queue of squared distances into a sorted result slice
// of Euclidean distances.
func drain(best *queue.Queue) []index.SearchResult {
	res := make([]index.SearchResult, best.Len())
	for i := best.Len() - 1; i >= 0; i-- {
		item, _ := best.Pop()
		res[i] = index.SearchResult{ID: item.ID, Distance: math32.Sqrt(item.Distance)}
	}
	index.SortResults(res)
	return res
}
