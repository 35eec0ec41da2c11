// Package kdtree implements an exact, pruning-based spatial index.
//
// Nodes live in an arena addressed by integer position; children are
// referenced by arena index rather than by pointer, which keeps the structure
// serializable and free of ownership cycles. For a given corpus and query the
// tree returns the same result set as the exact backend, modulo nothing: the
// shared (distance, id) tie order makes the two agree bit-for-bit.
package kdtree

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/internal/math32"
	"github.com/hupe1980/shindex/internal/queue"
)

// Compile-time check to ensure KDTree satisfies the index interface.
var _ index.Index = (*KDTree)(nil)

// DefaultLeafSize is the default leaf bucket threshold.
const DefaultLeafSize = 16

// noChild marks a leaf node in the arena.
const noChild = int32(-1)

// Options contains configuration options for the KD-tree.
type Options struct {
	// LeafSize is the maximum number of items per leaf bucket.
	LeafSize int
}

// DefaultOptions contains the default configuration options for the KD-tree.
var DefaultOptions = Options{
	LeafSize: DefaultLeafSize,
}

// Node is one arena slot. Internal nodes carry the split axis/value and the
// arena positions of their children; leaves carry a [Start, End) range into
// the item permutation.
type Node struct {
	Axis  int32
	Split float32
	Left  int32 // noChild for leaves
	Right int32 // noChild for leaves
	Start int32
	End   int32
}

// IsLeaf reports whether the node is a leaf bucket.
func (n Node) IsLeaf() bool { return n.Left == noChild }

// KDTree is a binary space-partitioning tree over corpus positions.
// Read-only after build; safe for unsynchronized concurrent searches.
type KDTree struct {
	c     *corpus.Corpus
	nodes []Node
	items []uint32 // permutation of corpus positions, leaves index into it
	root  int32
	opts  Options
}

// New builds a KD-tree over the given corpus.
func New(c *corpus.Corpus, optFns ...func(o *Options)) (*KDTree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if c == nil || c.Len() == 0 {
		return nil, index.ErrEmptyCorpus
	}
	if opts.LeafSize < 1 {
		return nil, &index.ErrInvalidParameter{Name: "LeafSize", Reason: fmt.Sprintf("must be >= 1, got %d", opts.LeafSize)}
	}

	t := &KDTree{
		c:     c,
		items: make([]uint32, c.Len()),
		opts:  opts,
	}
	for i := range t.items {
		t.items[i] = uint32(i)
	}

	t.root = t.build(0, int32(c.Len()), 0)

	return t, nil
}

// Restore reconstructs a KD-tree from a dumped node arena and item
// permutation without rebuilding.
func Restore(c *corpus.Corpus, nodes []Node, items []uint32, optFns ...func(o *Options)) (*KDTree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if c == nil || c.Len() == 0 {
		return nil, index.ErrEmptyCorpus
	}
	if len(items) != c.Len() {
		return nil, fmt.Errorf("kdtree: item permutation has %d entries, corpus has %d", len(items), c.Len())
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("kdtree: empty node arena")
	}
	for i, n := range nodes {
		if n.IsLeaf() {
			if n.Start < 0 || n.End > int32(len(items)) || n.Start > n.End {
				return nil, fmt.Errorf("kdtree: node %d has invalid leaf range [%d, %d)", i, n.Start, n.End)
			}
			continue
		}
		if int(n.Left) >= len(nodes) || int(n.Right) >= len(nodes) || n.Left < 0 || n.Right < 0 {
			return nil, fmt.Errorf("kdtree: node %d references children out of arena bounds", i)
		}
		if int(n.Axis) >= c.Dim() {
			return nil, fmt.Errorf("kdtree: node %d splits on axis %d, corpus has %d dims", i, n.Axis, c.Dim())
		}
	}

	return &KDTree{
		c:     c,
		nodes: nodes,
		items: items,
		root:  int32(len(nodes)) - 1, // build appends the root last
		opts:  opts,
	}, nil
}

// Dump returns the node arena and item permutation for serialization.
// Callers must not mutate the returned slices.
func (t *KDTree) Dump() ([]Node, []uint32) {
	return t.nodes, t.items
}

// LeafSize returns the configured leaf bucket threshold.
func (t *KDTree) LeafSize() int { return t.opts.LeafSize }

// Len returns the number of indexed items.
func (t *KDTree) Len() int { return t.c.Len() }

// Dim returns the item dimensionality.
func (t *KDTree) Dim() int { return t.c.Dim() }

// build partitions items[start:end) and returns the arena position of the
// subtree root. Children are appended before their parent, so the overall
// root is always the last arena slot.
func (t *KDTree) build(start, end int32, depth int) int32 {
	if end-start <= int32(t.opts.LeafSize) {
		t.nodes = append(t.nodes, Node{
			Left:  noChild,
			Right: noChild,
			Start: start,
			End:   end,
		})
		return int32(len(t.nodes)) - 1
	}

	axis := t.chooseAxis(start, end, depth)

	seg := t.items[start:end]
	sort.Slice(seg, func(i, j int) bool {
		vi, vj := t.c.Vector(seg[i])[axis], t.c.Vector(seg[j])[axis]
		if vi != vj {
			return vi < vj
		}
		return seg[i] < seg[j] // deterministic layout for duplicate values
	})

	mid := (start + end) / 2
	split := t.c.Vector(t.items[mid])[axis]

	left := t.build(start, mid, depth+1)
	right := t.build(mid, end, depth+1)

	t.nodes = append(t.nodes, Node{
		Axis:  int32(axis),
		Split: split,
		Left:  left,
		Right: right,
		Start: start,
		End:   end,
	})
	return int32(len(t.nodes)) - 1
}

// chooseAxis picks the dimension of maximum variance over items[start:end).
// Degenerate segments (all variances zero, or several dimensions tied for the
// maximum) fall back to round-robin by depth.
func (t *KDTree) chooseAxis(start, end int32, depth int) int {
	dim := t.c.Dim()
	count := float64(end - start)

	mean := make([]float64, dim)
	for _, id := range t.items[start:end] {
		v := t.c.Vector(id)
		for d := 0; d < dim; d++ {
			mean[d] += float64(v[d])
		}
	}
	for d := range mean {
		mean[d] /= count
	}

	variance := make([]float64, dim)
	for _, id := range t.items[start:end] {
		v := t.c.Vector(id)
		for d := 0; d < dim; d++ {
			diff := float64(v[d]) - mean[d]
			variance[d] += diff * diff
		}
	}

	best, ties := 0, 1
	for d := 1; d < dim; d++ {
		switch {
		case variance[d] > variance[best]:
			best, ties = d, 1
		case variance[d] == variance[best]:
			ties++
		}
	}

	if variance[best] == 0 || ties > 1 {
		return depth % dim
	}
	return best
}

// Search returns the k nearest items to q. The traversal descends into the
// subtree containing q first and only visits the sibling when the splitting
// hyperplane is closer than the current worst of the k best.
func (t *KDTree) Search(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := index.ValidateK(k); err != nil {
		return nil, err
	}
	if err := index.ValidateQuery(t.c.Dim(), q); err != nil {
		return nil, err
	}

	k = index.ClampK(k, t.c.Len())

	var filter func(uint32) bool
	if opts != nil {
		filter = opts.Filter
	}

	best := queue.NewMax(k)
	t.walk(t.root, q, k, filter, best)

	res := make([]index.SearchResult, best.Len())
	for i := best.Len() - 1; i >= 0; i-- {
		item, _ := best.Pop()
		res[i] = index.SearchResult{ID: item.ID, Distance: math32.Sqrt(item.Distance)}
	}
	index.SortResults(res)

	return res, nil
}

func (t *KDTree) walk(ni int32, q []float32, k int, filter func(uint32) bool, best *queue.Queue) {
	node := t.nodes[ni]

	if node.IsLeaf() {
		for _, id := range t.items[node.Start:node.End] {
			if filter != nil && !filter(id) {
				continue
			}
			d := math32.SquaredL2(q, t.c.Vector(id))
			best.PushBounded(queue.Item{ID: id, Distance: d}, k)
		}
		return
	}

	near, far := node.Left, node.Right
	if q[node.Axis] > node.Split {
		near, far = far, near
	}

	t.walk(near, q, k, filter, best)

	// Visit the sibling when the hyperplane could still hide a better item.
	// <= rather than < keeps equal-distance ties identical to the exact scan.
	diff := q[node.Axis] - node.Split
	if best.Len() < k {
		t.walk(far, q, k, filter, best)
		return
	}
	if worst, ok := best.Top(); ok && diff*diff <= worst.Distance {
		t.walk(far, q, k, filter, best)
	}
}
