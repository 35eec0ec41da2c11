// Package hnsw implements the Hierarchical Navigable Small World graph for
// approximate nearest neighbor search.
//
// The graph is built incrementally by single-item insertion over the corpus
// order and is read-only afterwards. Search recall is governed by M,
// EFConstruction and EF: raising any of them improves recall at increasing
// build or query cost. Level assignment draws from a seeded generator owned
// by the index, so two builds with the same seed and input order produce
// identical graphs.
package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/internal/math32"
	"github.com/hupe1980/shindex/internal/queue"
	"github.com/hupe1980/shindex/internal/visited"
)

const (
	// mmax0Multiplier is the multiplier for maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M; M=1 would make the level
	// multiplier 1/ln(M) divide by zero.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per layer.
	DefaultM = 16

	// DefaultEFConstruction is the default candidate-list size during build.
	DefaultEFConstruction = 200

	// DefaultEF is the default candidate-list size during search.
	DefaultEF = 100

	// DefaultSeed seeds the level-assignment generator.
	DefaultSeed = 1
)

// Compile-time check to ensure HNSW satisfies the index interface.
var _ index.Index = (*HNSW)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	// M is the number of established connections per node per layer.
	// Layer 0 allows 2*M. Higher M suits high intrinsic dimensionality and
	// high recall targets at higher build and memory cost.
	M int

	// EFConstruction is the size of the dynamic candidate list while
	// inserting. Larger values build a better graph, slower.
	EFConstruction int

	// EF is the default size of the dynamic candidate list while searching.
	// It is raised to k when smaller, and can be overridden per call.
	EF int

	// Heuristic switches between diversity-aware neighbor selection (true)
	// and naive closest-M selection (false).
	Heuristic bool

	// Seed seeds the level-assignment generator owned by the index.
	Seed int64
}

// DefaultOptions contains the default configuration options for HNSW.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EF:             DefaultEF,
	Heuristic:      true,
	Seed:           DefaultSeed,
}

// Graph is the serializable form of a built HNSW index: adjacency lists per
// layer, per-item levels and the entry point. Together with the corpus it is
// sufficient to reload without rebuilding.
type Graph struct {
	M          int
	Heuristic  bool
	EntryPoint uint32
	MaxLevel   int32
	Levels     []int32
	Conns      [][][]uint32
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	c *corpus.Corpus

	mmax  int     // max connections per node per layer
	mmax0 int     // max connections at layer 0
	ml    float64 // level multiplier 1/ln(M)

	// entryPoint anchors every search: the highest-level item seen so far.
	// Mutated only during single-threaded build.
	entryPoint uint32
	maxLevel   int

	levels []int32
	conns  [][][]uint32 // conns[id][layer] -> neighbor ids within that layer

	rng  *rand.Rand
	opts Options

	// Search-path scratch; build is single-threaded but post-build searches
	// may run concurrently.
	visitedPool *sync.Pool
	candPool    *sync.Pool
}

// New builds an HNSW index over the given corpus by inserting every item in
// corpus order.
func New(c *corpus.Corpus, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	h, err := newEmpty(c, opts)
	if err != nil {
		return nil, err
	}

	for i := 0; i < c.Len(); i++ {
		h.insert(uint32(i))
	}

	return h, nil
}

// Restore reconstructs an HNSW index from a dumped graph without rebuilding.
func Restore(c *corpus.Corpus, g *Graph, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.M = g.M
	opts.Heuristic = g.Heuristic

	h, err := newEmpty(c, opts)
	if err != nil {
		return nil, err
	}

	if len(g.Levels) != c.Len() || len(g.Conns) != c.Len() {
		return nil, fmt.Errorf("hnsw: graph has %d/%d items, corpus has %d", len(g.Levels), len(g.Conns), c.Len())
	}
	if int(g.EntryPoint) >= c.Len() {
		return nil, fmt.Errorf("hnsw: entry point %d out of range", g.EntryPoint)
	}
	for id, layers := range g.Conns {
		if len(layers) != int(g.Levels[id])+1 {
			return nil, fmt.Errorf("hnsw: item %d has %d layers, level says %d", id, len(layers), g.Levels[id]+1)
		}
	}

	h.entryPoint = g.EntryPoint
	h.maxLevel = int(g.MaxLevel)
	h.levels = g.Levels
	h.conns = g.Conns

	return h, nil
}

func newEmpty(c *corpus.Corpus, opts Options) (*HNSW, error) {
	if c == nil || c.Len() == 0 {
		return nil, index.ErrEmptyCorpus
	}
	if opts.M <= 0 {
		return nil, &index.ErrInvalidParameter{Name: "M", Reason: fmt.Sprintf("must be >= 1, got %d", opts.M)}
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction < 1 {
		return nil, &index.ErrInvalidParameter{Name: "EFConstruction", Reason: fmt.Sprintf("must be >= 1, got %d", opts.EFConstruction)}
	}
	if opts.EF < 1 {
		return nil, &index.ErrInvalidParameter{Name: "EF", Reason: fmt.Sprintf("must be >= 1, got %d", opts.EF)}
	}

	return &HNSW{
		c:      c,
		mmax:   opts.M,
		mmax0:  mmax0Multiplier * opts.M,
		ml:     1 / math.Log(float64(opts.M)),
		levels: make([]int32, c.Len()),
		conns:  make([][][]uint32, c.Len()),
		rng:    rand.New(rand.NewSource(opts.Seed)),
		opts:   opts,
		visitedPool: &sync.Pool{
			New: func() any { return visited.New(c.Len()) },
		},
		candPool: &sync.Pool{
			New: func() any { return queue.NewMin(opts.EFConstruction) },
		},
	}, nil
}

// Len returns the number of indexed items.
func (h *HNSW) Len() int { return h.c.Len() }

// Dim returns the item dimensionality.
func (h *HNSW) Dim() int { return h.c.Dim() }

// EntryPoint returns the item anchoring every search.
func (h *HNSW) EntryPoint() uint32 { return h.entryPoint }

// MaxLevel returns the highest populated layer.
func (h *HNSW) MaxLevel() int { return h.maxLevel }

// Level returns the assigned top layer of an item.
func (h *HNSW) Level(id uint32) int { return int(h.levels[id]) }

// Neighbors returns a copy of the adjacency list of id at the given layer.
func (h *HNSW) Neighbors(id uint32, layer int) []uint32 {
	if layer > int(h.levels[id]) {
		return nil
	}
	conns := h.conns[id][layer]
	out := make([]uint32, len(conns))
	copy(out, conns)
	return out
}

// Dump returns the serializable graph. Callers must not mutate it.
func (h *HNSW) Dump() *Graph {
	return &Graph{
		M:          h.opts.M,
		Heuristic:  h.opts.Heuristic,
		EntryPoint: h.entryPoint,
		MaxLevel:   int32(h.maxLevel),
		Levels:     h.levels,
		Conns:      h.conns,
	}
}

// randomLevel draws the assigned top layer from an exponential distribution
// with multiplier 1/ln(M): higher layers are exponentially rarer.
func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(r) * h.ml))
}

// insert adds the corpus item at position id to the graph. The first item
// becomes the entry point unconditionally.
func (h *HNSW) insert(id uint32) {
	level := h.randomLevel()
	h.levels[id] = int32(level)
	h.conns[id] = make([][]uint32, level+1)

	if id == 0 {
		h.entryPoint = id
		h.maxLevel = level
		return
	}

	vec := h.c.Vector(id)
	curr := h.entryPoint
	currDist := math32.SquaredL2(vec, h.c.Vector(curr))

	// Greedy descent through the layers above the new item's level.
	for l := h.maxLevel; l > level; l-- {
		curr, currDist = h.greedyStep(vec, curr, currDist, l)
	}

	// From min(level, maxLevel) down to 0: best-first search with
	// EFConstruction candidates, link bidirectionally, seed the next layer
	// with this layer's closest find.
	top := level
	if top > h.maxLevel {
		top = h.maxLevel
	}
	for l := top; l >= 0; l-- {
		results := h.searchLayer(vec, curr, currDist, l, h.opts.EFConstruction, nil)

		if best, ok := results.Min(); ok {
			curr, currDist = best.ID, best.Distance
		}

		neighbors := h.selectNeighbors(results, h.opts.M)
		h.conns[id][l] = neighbors

		for _, nb := range neighbors {
			h.link(nb, id, l)
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
}

// greedyStep walks to the best neighbor at the given layer until no neighbor
// improves on the current candidate.
func (h *HNSW) greedyStep(q []float32, curr uint32, currDist float32, layer int) (uint32, float32) {
	for changed := true; changed; {
		changed = false
		if layer > int(h.levels[curr]) {
			break
		}
		for _, nb := range h.conns[curr][layer] {
			d := math32.SquaredL2(q, h.c.Vector(nb))
			if d < currDist {
				curr, currDist = nb, d
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer runs a bounded best-first search at one layer and returns a max
// queue holding the ef best items found. When a filter is set it is applied
// during traversal: filtered items still navigate but never enter the
// results, and exploration stays permissive to avoid getting trapped in
// filtered-out regions.
func (h *HNSW) searchLayer(q []float32, ep uint32, epDist float32, layer, ef int, filter func(uint32) bool) *queue.Queue {
	vis := h.visitedPool.Get().(*visited.Set)
	vis.Reset()
	defer h.visitedPool.Put(vis)

	cands := h.candPool.Get().(*queue.Queue)
	cands.Reset()
	defer h.candPool.Put(cands)

	results := queue.NewMax(ef + 1)

	vis.Visit(ep)
	cands.Push(queue.Item{ID: ep, Distance: epDist})
	if filter == nil || filter(ep) {
		results.Push(queue.Item{ID: ep, Distance: epDist})
	}

	for cands.Len() > 0 {
		curr, _ := cands.Pop()

		if results.Len() >= ef {
			if worst, ok := results.Top(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		if layer > int(h.levels[curr.ID]) {
			continue
		}
		for _, nb := range h.conns[curr.ID][layer] {
			if vis.Visited(nb) {
				continue
			}
			vis.Visit(nb)

			d := math32.SquaredL2(q, h.c.Vector(nb))

			// Skip obviously-bad candidates once ef results are in hand,
			// except under filtering where traversal must stay permissive.
			if filter == nil && results.Len() >= ef {
				if worst, ok := results.Top(); ok && d > worst.Distance {
					continue
				}
			}

			cands.Push(queue.Item{ID: nb, Distance: d})

			if filter == nil || filter(nb) {
				results.Push(queue.Item{ID: nb, Distance: d})
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	return results
}

// selectNeighbors reduces a candidate queue (distances measured from one base
// item) to at most m neighbor ids, closest first.
func (h *HNSW) selectNeighbors(cands *queue.Queue, m int) []uint32 {
	if h.opts.Heuristic && cands.Len() > m {
		return h.selectNeighborsHeuristic(cands, m)
	}
	return h.selectNeighborsSimple(cands, m)
}

// selectNeighborsSimple keeps the m closest candidates.
func (h *HNSW) selectNeighborsSimple(cands *queue.Queue, m int) []uint32 {
	for cands.Len() > m {
		cands.Pop()
	}

	res := make([]uint32, cands.Len())
	for i := cands.Len() - 1; i >= 0; i-- {
		item, _ := cands.Pop()
		res[i] = item.ID
	}
	return res
}

// selectNeighborsHeuristic keeps the closest candidate and every candidate
// not dominated by an already-kept one: a candidate closer to a kept neighbor
// than to the base item is set aside, which spreads links across directions
// instead of clustering them. Spare slots are filled closest-first from the
// rejected candidates.
func (h *HNSW) selectNeighborsHeuristic(cands *queue.Queue, m int) []uint32 {
	// Pop from the max queue fills ascending by distance.
	ordered := make([]queue.Item, cands.Len())
	for i := len(ordered) - 1; i >= 0; i-- {
		ordered[i], _ = cands.Pop()
	}

	selected := make([]uint32, 0, m)
	selectedVecs := make([][]float32, 0, m)
	var spares []queue.Item

	for _, cand := range ordered {
		if len(selected) >= m {
			break
		}

		candVec := h.c.Vector(cand.ID)
		keep := true
		for _, sv := range selectedVecs {
			if math32.SquaredL2(candVec, sv) < cand.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, cand.ID)
			selectedVecs = append(selectedVecs, candVec)
		} else {
			spares = append(spares, cand)
		}
	}

	for _, sp := range spares {
		if len(selected) >= m {
			break
		}
		selected = append(selected, sp.ID)
	}

	return selected
}

// link adds a back-edge src -> dst at the given layer, pruning src's
// adjacency list with the selection heuristic when it exceeds the layer cap.
// Overflow is always resolved here, never surfaced as an error.
func (h *HNSW) link(src, dst uint32, layer int) {
	conns := h.conns[src][layer]
	for _, c := range conns {
		if c == dst {
			return
		}
	}
	conns = append(conns, dst)

	maxConns := h.mmax
	if layer == 0 {
		maxConns = h.mmax0
	}

	if len(conns) <= maxConns {
		h.conns[src][layer] = conns
		return
	}

	srcVec := h.c.Vector(src)
	cands := queue.NewMax(len(conns))
	for _, c := range conns {
		cands.Push(queue.Item{ID: c, Distance: math32.SquaredL2(srcVec, h.c.Vector(c))})
	}
	h.conns[src][layer] = h.selectNeighbors(cands, maxConns)
}

// Search returns approximately the k nearest items to q. EF (from opts or
// the index default, raised to k) bounds the layer-0 candidate list; recall
// reaches 1.0 as EF approaches the corpus size.
func (h *HNSW) Search(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if err := index.ValidateQuery(h.c.Dim(), q); err != nil {
		return nil, err
	}

	k = index.ClampK(k, h.c.Len())

	ef := h.opts.EF
	var filter func(uint32) bool
	if opts != nil {
		if opts.EF > 0 {
			ef = opts.EF
		}
		filter = opts.Filter
	}
	if ef < k {
		ef = k
	}

	curr := h.entryPoint
	currDist := math32.SquaredL2(q, h.c.Vector(curr))
	for l := h.maxLevel; l >= 1; l-- {
		curr, currDist = h.greedyStep(q, curr, currDist, l)
	}

	results := h.searchLayer(q, curr, currDist, 0, ef, filter)

	for results.Len() > k {
		results.Pop()
	}

	res := make([]index.SearchResult, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.Pop()
		res[i] = index.SearchResult{ID: item.ID, Distance: math32.Sqrt(item.Distance)}
	}
	index.SortResults(res)

	return res, nil
}
