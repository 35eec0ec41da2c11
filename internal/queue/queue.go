// Package queue provides the bounded priority queues used by the search
// backends to track candidate neighbors.
package queue

// Item represents an entry in the priority queue.
// Value-based (no pointers) for cache locality and zero allocations.
type Item struct {
	ID       uint32  // ID is the corpus position of the item.
	Distance float32 // Distance is the priority of the item in the queue.
}

// Queue is a binary heap of Items with configurable polarity.
//
// Ordering is by Distance with ties broken by ID: a min queue surfaces the
// smallest distance (smallest ID on ties), a max queue the largest distance
// (largest ID on ties). The tie rule is what makes the exact and KD-tree
// backends return identical result sets for equal-distance items.
type Queue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin initializes a new queue that surfaces the closest item.
func NewMin(capacity int) *Queue {
	return &Queue{
		isMaxHeap: false,
		items:     make([]Item, 0, capacity),
	}
}

// NewMax initializes a new queue that surfaces the farthest item.
func NewMax(capacity int) *Queue {
	return &Queue{
		isMaxHeap: true,
		items:     make([]Item, 0, capacity),
	}
}

// Len returns the number of elements in the queue.
func (q *Queue) Len() int { return len(q.items) }

// Top returns the top element of the heap without removing it.
func (q *Queue) Top() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (q *Queue) Push(item Item) {
	q.items = append(q.items, item)
	q.siftUp(len(q.items) - 1)
}

// Pop removes and returns the top element while maintaining the heap invariant.
func (q *Queue) Pop() (Item, bool) {
	n := len(q.items)
	if n == 0 {
		return Item{}, false
	}
	root := q.items[0]
	last := q.items[n-1]
	q.items[n-1] = Item{}
	q.items = q.items[:n-1]
	if n-1 > 0 {
		q.items[0] = last
		q.siftDown(0)
	}
	return root, true
}

// Min returns the item with the smallest distance currently in the queue.
// For min queues this is the top element; for max queues this scans the
// backing slice.
func (q *Queue) Min() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	if !q.isMaxHeap {
		return q.items[0], true
	}
	best := q.items[0]
	for i := 1; i < len(q.items); i++ {
		if less(q.items[i], best) {
			best = q.items[i]
		}
	}
	return best, true
}

// PushBounded inserts an item into a max queue that acts as a "k best seen so
// far" set of the given capacity. When full, the item replaces the current
// worst only if it ranks strictly better under the (distance, id) order.
func (q *Queue) PushBounded(item Item, capacity int) {
	if len(q.items) < capacity {
		q.Push(item)
		return
	}
	if less(item, q.items[0]) {
		q.Pop()
		q.Push(item)
	}
}

// Reset clears the queue for reuse.
func (q *Queue) Reset() {
	q.items = q.items[:0]
}

// less reports whether a ranks before b in ascending (distance, id) order.
func less(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

func (q *Queue) before(i, j int) bool {
	if q.isMaxHeap {
		return less(q.items[j], q.items[i])
	}
	return less(q.items[i], q.items[j])
}

func (q *Queue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.before(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *Queue) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && q.before(r, l) {
			best = r
		}
		if !q.before(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}
