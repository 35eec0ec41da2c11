package exact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/testutil"
)

func TestExact(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyCorpus", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, index.ErrEmptyCorpus)
	})

	t.Run("Search", func(t *testing.T) {
		c, err := corpus.New([][]float32{
			{0, 0},
			{1, 0},
			{5, 5},
		})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		res, err := e.Search(ctx, []float32{0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, res, 2)

		assert.Equal(t, uint32(0), res[0].ID)
		assert.Equal(t, float32(0), res[0].Distance)
		assert.Equal(t, uint32(1), res[1].ID)
		assert.Equal(t, float32(1), res[1].Distance)
	})

	t.Run("KClampedToCorpusSize", func(t *testing.T) {
		c, err := corpus.New([][]float32{{0}, {1}, {2}})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		res, err := e.Search(ctx, []float32{0}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, res, 3)
	})

	t.Run("InvalidK", func(t *testing.T) {
		c, err := corpus.New([][]float32{{0}})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		_, err = e.Search(ctx, []float32{0}, 0, nil)
		assert.Error(t, err)
		assert.IsType(t, &index.ErrInvalidParameter{}, err)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		c, err := corpus.New([][]float32{{0, 0}})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		_, err = e.Search(ctx, []float32{0}, 1, nil)
		assert.Error(t, err)
		assert.IsType(t, &index.ErrDimensionMismatch{}, err)
	})

	t.Run("TiesBrokenByID", func(t *testing.T) {
		// Items 1 and 2 are equidistant from the query; the smaller id wins.
		c, err := corpus.New([][]float32{
			{0, 0},
			{0, 2},
			{2, 0},
			{9, 9},
		})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		res, err := e.Search(ctx, []float32{0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, uint32(0), res[0].ID)
		assert.Equal(t, uint32(1), res[1].ID)
	})

	t.Run("Filter", func(t *testing.T) {
		c, err := corpus.New([][]float32{
			{0, 0},
			{1, 0},
			{2, 0},
		})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		res, err := e.Search(ctx, []float32{0, 0}, 3, &index.SearchOptions{
			Filter: func(id uint32) bool { return id != 0 },
		})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, uint32(1), res[0].ID)
		assert.Equal(t, uint32(2), res[1].ID)
	})

	t.Run("MatchesGroundTruth", func(t *testing.T) {
		rng := testutil.NewRNG(42)
		vectors := rng.UniformVectors(500, 8)

		c, err := corpus.New(vectors)
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			q := rng.UniformVectors(1, 8)[0]

			res, err := e.Search(ctx, q, 10, nil)
			require.NoError(t, err)

			truth := testutil.BruteForceSearch(vectors, q, 10)
			require.Len(t, res, len(truth))
			for j := range truth {
				assert.Equal(t, truth[j].ID, res[j].ID)
				assert.InDelta(t, truth[j].Distance, res[j].Distance, 1e-5)
			}
		}
	})

	t.Run("ParallelMatchesSequential", func(t *testing.T) {
		rng := testutil.NewRNG(7)
		vectors := rng.UniformVectors(5000, 6)

		c, err := corpus.New(vectors)
		require.NoError(t, err)

		seq, err := New(c, func(o *Options) {
			o.Parallelism = 1
		})
		require.NoError(t, err)

		par, err := New(c, func(o *Options) {
			o.Parallelism = 4
			o.MinParallel = 1
		})
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			q := rng.UniformVectors(1, 6)[0]

			want, err := seq.Search(ctx, q, 20, nil)
			require.NoError(t, err)

			got, err := par.Search(ctx, q, 20, nil)
			require.NoError(t, err)

			assert.Equal(t, want, got)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		c, err := corpus.New([][]float32{{0}})
		require.NoError(t, err)

		e, err := New(c)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err = e.Search(cctx, []float32{0}, 1, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
