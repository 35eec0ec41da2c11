package shindex

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/shindex/benchmark"
	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/index/exact"
	"github.com/hupe1980/shindex/index/hnsw"
	"github.com/hupe1980/shindex/index/kdtree"
	"github.com/hupe1980/shindex/persistence"
	"github.com/hupe1980/shindex/projection"
	"github.com/hupe1980/shindex/shingle"
)

// Backend identifies one of the closed set of search backends.
type Backend int

const (
	// BackendExact is the brute-force oracle.
	BackendExact Backend = iota
	// BackendKDTree is the exact pruning-based spatial index.
	BackendKDTree
	// BackendHNSW is the approximate graph index.
	BackendHNSW
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendExact:
		return "exact"
	case BackendKDTree:
		return "kd"
	case BackendHNSW:
		return "hnsw"
	default:
		return fmt.Sprintf("unknown(%d)", int(b))
	}
}

// ParseBackend resolves a backend by name.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "exact", "brute":
		return BackendExact, nil
	case "kd", "kdtree":
		return BackendKDTree, nil
	case "hnsw":
		return BackendHNSW, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Result is a search hit joined back to its source recording.
type Result struct {
	// ID is the corpus position of the matched item.
	ID uint32

	// Distance is the Euclidean distance between query and item.
	Distance float32

	// RecordingID identifies the recording the item was shingled from.
	// Empty when the index was built without provenance.
	RecordingID string
}

// Shindex bundles an immutable corpus with the three search backends built
// over it. Safe for unsynchronized concurrent searches once constructed.
type Shindex struct {
	corpus *corpus.Corpus
	prov   *corpus.Provenance
	pca    *projection.PCA

	exact *exact.Exact
	kd    *kdtree.KDTree
	hnsw  *hnsw.HNSW

	opts options
}

// FromSequences runs the full pipeline: shingle every feature sequence with
// the given window, fit and apply the PCA projection (unless disabled), build
// the corpus plus provenance, and construct all three backends.
func FromSequences(ctx context.Context, seqs []*shingle.FeatureSequence, window int, optFns ...Option) (*Shindex, error) {
	o := applyOptions(optFns)

	col, err := shingle.NewCollection(window)
	if err != nil {
		return nil, err
	}
	for _, seq := range seqs {
		if _, err := col.Add(seq); err != nil {
			return nil, err
		}
	}

	vectors := col.Vectors()

	var pca *projection.PCA
	if o.targetDim > 0 && col.Len() > 0 && o.targetDim < col.Dim() {
		pca, err = projection.Fit(vectors, o.targetDim)
		if err != nil {
			return nil, err
		}
		vectors, err = pca.ProjectAll(vectors)
		if err != nil {
			return nil, err
		}
	}

	c, err := corpus.New(vectors)
	if err != nil {
		return nil, translateError(err)
	}

	s, err := New(ctx, c, corpus.NewProvenance(col.Sources()), optFns...)
	if err != nil {
		return nil, err
	}
	s.pca = pca

	return s, nil
}

// New builds all three backends over an existing corpus. prov may be nil
// when provenance is not tracked.
func New(ctx context.Context, c *corpus.Corpus, prov *corpus.Provenance, optFns ...Option) (*Shindex, error) {
	o := applyOptions(optFns)

	if c == nil || c.Len() == 0 {
		return nil, ErrEmptyCorpus
	}
	if prov != nil && prov.Len() != c.Len() {
		return nil, fmt.Errorf("shindex: provenance tracks %d items, corpus has %d", prov.Len(), c.Len())
	}

	s := &Shindex{
		corpus: c,
		prov:   prov,
		opts:   o,
	}

	// Backend builds do not share mutable state.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		ex, err := exact.New(c, o.exactOptions...)
		o.logger.LogBuild(gctx, BackendExact.String(), c.Len(), time.Since(start), err)
		if err != nil {
			return err
		}
		s.exact = ex
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		kd, err := kdtree.New(c, o.kdOptions...)
		o.logger.LogBuild(gctx, BackendKDTree.String(), c.Len(), time.Since(start), err)
		if err != nil {
			return err
		}
		s.kd = kd
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		h, err := hnsw.New(c, o.hnswOptions...)
		o.logger.LogBuild(gctx, BackendHNSW.String(), c.Len(), time.Since(start), err)
		if err != nil {
			return err
		}
		s.hnsw = h
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s, nil
}

// Corpus returns the indexed corpus.
func (s *Shindex) Corpus() *corpus.Corpus { return s.corpus }

// Provenance returns the item-to-recording mapping, or nil.
func (s *Shindex) Provenance() *corpus.Provenance { return s.prov }

// Index returns the backend implementation for dispatch-free use.
func (s *Shindex) Index(b Backend) (index.Index, error) {
	switch b {
	case BackendExact:
		return s.exact, nil
	case BackendKDTree:
		return s.kd, nil
	case BackendHNSW:
		return s.hnsw, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownBackend, int(b))
	}
}

// Project maps a raw shingle into item space using the fitted projection.
// Without a fitted projection it validates the dimension and copies.
func (s *Shindex) Project(v []float32) ([]float32, error) {
	if s.pca != nil {
		return s.pca.Project(v)
	}
	if err := index.ValidateQuery(s.corpus.Dim(), v); err != nil {
		return nil, err
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

// Search returns the k nearest items to q from the chosen backend, ascending
// by distance, joined to their source recordings.
func (s *Shindex) Search(ctx context.Context, b Backend, q []float32, k int) ([]Result, error) {
	return s.SearchWithOptions(ctx, b, q, k, nil)
}

// SearchWithOptions is Search with per-call options (EF override, filter).
func (s *Shindex) SearchWithOptions(ctx context.Context, b Backend, q []float32, k int, opts *index.SearchOptions) ([]Result, error) {
	idx, err := s.Index(b)
	if err != nil {
		return nil, err
	}

	res, err := idx.Search(ctx, q, k, opts)
	s.opts.logger.LogSearch(ctx, b.String(), k, len(res), err)
	if err != nil {
		return nil, err
	}

	out := make([]Result, len(res))
	for i, r := range res {
		out[i] = Result{ID: r.ID, Distance: r.Distance}
		if s.prov != nil {
			out[i].RecordingID = s.prov.Source(r.ID)
		}
	}

	return out, nil
}

// SearchRecordings restricts the search to items shingled from the given
// recordings.
func (s *Shindex) SearchRecordings(ctx context.Context, b Backend, q []float32, k int, recordings ...string) ([]Result, error) {
	if s.prov == nil {
		return nil, fmt.Errorf("shindex: index built without provenance")
	}

	filter, err := s.prov.Filter(recordings...)
	if err != nil {
		return nil, err
	}

	return s.SearchWithOptions(ctx, b, q, k, &index.SearchOptions{Filter: filter})
}

// Benchmark replays the query set against all three backends and reports
// per-backend latency statistics.
func (s *Shindex) Benchmark(ctx context.Context, queries [][]float32, k int, optFns ...func(o *benchmark.Options)) (*benchmark.Report, error) {
	backends := []benchmark.Backend{
		{Name: BackendExact.String(), Index: s.exact},
		{Name: BackendKDTree.String(), Index: s.kd},
		{Name: BackendHNSW.String(), Index: s.hnsw},
	}
	return benchmark.Run(ctx, backends, queries, k, optFns...)
}

// SaveSnapshot serializes the corpus, provenance and both tree/graph indexes
// to a file. The fitted PCA projection is not part of the snapshot; queries
// against a reloaded index must already be in item space.
func (s *Shindex) SaveSnapshot(ctx context.Context, path string) error {
	kdNodes, kdItems := s.kd.Dump()

	snap := &persistence.Snapshot{
		Dim:        s.corpus.Dim(),
		Vectors:    s.corpus.Data(),
		KDLeafSize: s.kd.LeafSize(),
		KDNodes:    kdNodes,
		KDItems:    kdItems,
		Graph:      s.hnsw.Dump(),
	}
	if s.prov != nil {
		snap.Sources = s.prov.Sources()
	} else {
		snap.Sources = make([]string, s.corpus.Len())
	}

	f, err := os.Create(path)
	if err != nil {
		s.opts.logger.LogSnapshot(ctx, "save", path, err)
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = persistence.Write(w, snap, func(o *persistence.Options) {
		o.Compression = s.opts.compression
	})
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	s.opts.logger.LogSnapshot(ctx, "save", path, err)

	return err
}

// LoadSnapshot reloads a saved index set without rebuilding.
func LoadSnapshot(ctx context.Context, path string, optFns ...Option) (*Shindex, error) {
	o := applyOptions(optFns)

	f, err := os.Open(path)
	if err != nil {
		o.logger.LogSnapshot(ctx, "load", path, err)
		return nil, err
	}
	defer f.Close()

	snap, err := persistence.Read(bufio.NewReader(f))
	if err != nil {
		o.logger.LogSnapshot(ctx, "load", path, err)
		return nil, err
	}

	c, err := corpus.FromFlat(snap.Vectors, snap.Dim)
	if err != nil {
		return nil, translateError(err)
	}

	kd, err := kdtree.Restore(c, snap.KDNodes, snap.KDItems, func(opt *kdtree.Options) {
		opt.LeafSize = snap.KDLeafSize
	})
	if err != nil {
		return nil, err
	}

	h, err := hnsw.Restore(c, snap.Graph, o.hnswOptions...)
	if err != nil {
		return nil, err
	}

	ex, err := exact.New(c, o.exactOptions...)
	if err != nil {
		return nil, err
	}

	s := &Shindex{
		corpus: c,
		prov:   corpus.NewProvenance(snap.Sources),
		exact:  ex,
		kd:     kd,
		hnsw:   h,
		opts:   o,
	}
	o.logger.LogSnapshot(ctx, "load", path, nil)

	return s, nil
}
