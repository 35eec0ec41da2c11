package shindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shindex/benchmark"
	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/shingle"
	"github.com/hupe1980/shindex/testutil"
)

func testSequences(t *testing.T, num, frames, dim int) []*shingle.FeatureSequence {
	t.Helper()

	rng := testutil.NewRNG(42)
	seqs := make([]*shingle.FeatureSequence, 0, num)
	for id, fr := range rng.Recordings(num, frames, dim) {
		seq, err := shingle.NewFeatureSequence(id, fr)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	return seqs
}

func TestParseBackend(t *testing.T) {
	for name, want := range map[string]Backend{
		"exact":  BackendExact,
		"brute":  BackendExact,
		"kd":     BackendKDTree,
		"kdtree": BackendKDTree,
		"hnsw":   BackendHNSW,
	} {
		b, err := ParseBackend(name)
		require.NoError(t, err)
		assert.Equal(t, want, b)
	}

	_, err := ParseBackend("annoy")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestBackendString(t *testing.T) {
	assert.Equal(t, "exact", BackendExact.String())
	assert.Equal(t, "kd", BackendKDTree.String())
	assert.Equal(t, "hnsw", BackendHNSW.String())
}

func TestFromSequences(t *testing.T) {
	ctx := context.Background()

	t.Run("Pipeline", func(t *testing.T) {
		seqs := testSequences(t, 4, 60, 12)

		s, err := FromSequences(ctx, seqs, 20, WithTargetDim(16))
		require.NoError(t, err)

		// 4 recordings x (60 - 20 + 1) shingles each.
		assert.Equal(t, 164, s.Corpus().Len())
		assert.Equal(t, 16, s.Corpus().Dim())
		assert.Len(t, s.Provenance().Recordings(), 4)
	})

	t.Run("ProjectionDisabled", func(t *testing.T) {
		seqs := testSequences(t, 2, 30, 4)

		s, err := FromSequences(ctx, seqs, 5, WithTargetDim(0))
		require.NoError(t, err)
		assert.Equal(t, 20, s.Corpus().Dim())
	})

	t.Run("EmptyAfterShingling", func(t *testing.T) {
		// All sequences shorter than the window: nothing to index.
		seqs := testSequences(t, 2, 3, 4)

		_, err := FromSequences(ctx, seqs, 10)
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("ProjectQueryMatchesItems", func(t *testing.T) {
		seqs := testSequences(t, 3, 50, 8)

		s, err := FromSequences(ctx, seqs, 10, WithTargetDim(12))
		require.NoError(t, err)

		// A raw shingle from one of the recordings projects onto (near) its
		// own indexed item.
		raw, err := shingle.Generate(seqs[0], 10)
		require.NoError(t, err)

		q, err := s.Project(raw[0])
		require.NoError(t, err)
		require.Len(t, q, 12)

		res, err := s.Search(ctx, BackendExact, q, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.InDelta(t, 0, float64(res[0].Distance), 1e-3)
		assert.Equal(t, seqs[0].ID(), res[0].RecordingID)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	seqs := testSequences(t, 3, 40, 6)
	s, err := FromSequences(ctx, seqs, 8, WithTargetDim(0))
	require.NoError(t, err)

	rng := testutil.NewRNG(7)
	q := rng.UniformVectors(1, s.Corpus().Dim())[0]

	t.Run("BackendsAgreeOnExactSearch", func(t *testing.T) {
		want, err := s.Search(ctx, BackendExact, q, 5)
		require.NoError(t, err)
		require.Len(t, want, 5)

		got, err := s.Search(ctx, BackendKDTree, q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("HNSWFindsNeighbors", func(t *testing.T) {
		res, err := s.Search(ctx, BackendHNSW, q, 5)
		require.NoError(t, err)
		assert.Len(t, res, 5)
	})

	t.Run("ResultsCarryRecordingIDs", func(t *testing.T) {
		res, err := s.Search(ctx, BackendExact, q, 3)
		require.NoError(t, err)
		for _, r := range res {
			assert.Equal(t, s.Provenance().Source(r.ID), r.RecordingID)
		}
	})

	t.Run("SearchRecordings", func(t *testing.T) {
		target := s.Provenance().Recordings()[0]

		res, err := s.SearchRecordings(ctx, BackendExact, q, 5, target)
		require.NoError(t, err)
		require.NotEmpty(t, res)
		for _, r := range res {
			assert.Equal(t, target, r.RecordingID)
		}
	})

	t.Run("SearchRecordingsUnknownID", func(t *testing.T) {
		_, err := s.SearchRecordings(ctx, BackendExact, q, 5, "no-such-recording")
		assert.Error(t, err)
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := s.Search(ctx, Backend(99), q, 5)
		assert.ErrorIs(t, err, ErrUnknownBackend)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := s.Search(ctx, BackendExact, []float32{1, 2}, 5)
		assert.IsType(t, &index.ErrDimensionMismatch{}, err)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("NilCorpus", func(t *testing.T) {
		_, err := New(ctx, nil, nil)
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("ProvenanceSizeMismatch", func(t *testing.T) {
		c, err := corpus.New([][]float32{{1}, {2}})
		require.NoError(t, err)

		_, err = New(ctx, c, corpus.NewProvenance([]string{"rec-a"}))
		assert.Error(t, err)
	})

	t.Run("WithoutProvenance", func(t *testing.T) {
		c, err := corpus.New([][]float32{{1}, {2}, {3}})
		require.NoError(t, err)

		s, err := New(ctx, c, nil)
		require.NoError(t, err)

		res, err := s.Search(ctx, BackendExact, []float32{1}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Empty(t, res[0].RecordingID)

		_, err = s.SearchRecordings(ctx, BackendExact, []float32{1}, 2, "rec-a")
		assert.Error(t, err)
	})
}

func TestBenchmark(t *testing.T) {
	ctx := context.Background()

	seqs := testSequences(t, 2, 30, 4)
	s, err := FromSequences(ctx, seqs, 5, WithTargetDim(0))
	require.NoError(t, err)

	rng := testutil.NewRNG(3)
	queries := rng.UniformVectors(3, s.Corpus().Dim())

	report, err := s.Benchmark(ctx, queries, 5, func(o *benchmark.Options) {
		o.Rounds = 1
		o.Warmup = 0
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.K)
	require.Len(t, report.Stats, 3)
	names := []string{report.Stats[0].Name, report.Stats[1].Name, report.Stats[2].Name}
	assert.Equal(t, []string{"exact", "kd", "hnsw"}, names)
	for _, st := range report.Stats {
		assert.Equal(t, 3, st.Queries)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()

	seqs := testSequences(t, 3, 40, 6)
	s, err := FromSequences(ctx, seqs, 8, WithTargetDim(0))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.shdx")
	require.NoError(t, s.SaveSnapshot(ctx, path))

	loaded, err := LoadSnapshot(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, s.Corpus().Len(), loaded.Corpus().Len())
	assert.Equal(t, s.Corpus().Dim(), loaded.Corpus().Dim())
	assert.Equal(t, s.Provenance().Recordings(), loaded.Provenance().Recordings())

	rng := testutil.NewRNG(9)
	q := rng.UniformVectors(1, s.Corpus().Dim())[0]

	for _, b := range []Backend{BackendExact, BackendKDTree, BackendHNSW} {
		want, err := s.Search(ctx, b, q, 5)
		require.NoError(t, err)

		got, err := loaded.Search(ctx, b, q, 5)
		require.NoError(t, err)

		assert.Equal(t, want, got, "backend %s", b)
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	_, err := LoadSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing.shdx"))
	assert.Error(t, err)
}
