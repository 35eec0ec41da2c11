package benchmark

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
	"github.com/hupe1980/shindex/index/exact"
	"github.com/hupe1980/shindex/index/kdtree"
	"github.com/hupe1980/shindex/testutil"
)

func testBackends(t *testing.T) []Backend {
	t.Helper()

	rng := testutil.NewRNG(42)
	c, err := corpus.New(rng.UniformVectors(200, 4))
	require.NoError(t, err)

	e, err := exact.New(c)
	require.NoError(t, err)

	kd, err := kdtree.New(c)
	require.NoError(t, err)

	return []Backend{
		{Name: "exact", Index: e},
		{Name: "kd", Index: kd},
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("CollectsStatsPerBackend", func(t *testing.T) {
		backends := testBackends(t)
		rng := testutil.NewRNG(7)
		queries := rng.UniformVectors(5, 4)

		report, err := Run(ctx, backends, queries, 3, func(o *Options) {
			o.Rounds = 2
			o.Warmup = 1
		})
		require.NoError(t, err)

		assert.Equal(t, 3, report.K)
		assert.Equal(t, 2, report.Rounds)
		require.Len(t, report.Stats, 2)

		for _, s := range report.Stats {
			assert.Equal(t, 10, s.Queries) // 2 rounds x 5 queries
			assert.Greater(t, s.Total, time.Duration(0))
			assert.GreaterOrEqual(t, s.Max, s.Min)
			assert.GreaterOrEqual(t, s.Mean, s.Min)
			assert.LessOrEqual(t, s.Mean, s.Max)
		}
	})

	t.Run("NoBackends", func(t *testing.T) {
		rng := testutil.NewRNG(7)
		_, err := Run(ctx, nil, rng.UniformVectors(1, 4), 1)
		assert.Error(t, err)
	})

	t.Run("NoQueries", func(t *testing.T) {
		_, err := Run(ctx, testBackends(t), nil, 1)
		assert.Error(t, err)
	})

	t.Run("InvalidK", func(t *testing.T) {
		rng := testutil.NewRNG(7)
		_, err := Run(ctx, testBackends(t), rng.UniformVectors(1, 4), 0)
		assert.Error(t, err)
	})

	t.Run("InvalidRounds", func(t *testing.T) {
		rng := testutil.NewRNG(7)
		_, err := Run(ctx, testBackends(t), rng.UniformVectors(1, 4), 1, func(o *Options) {
			o.Rounds = 0
		})
		assert.Error(t, err)
	})

	t.Run("SearchErrorPropagates", func(t *testing.T) {
		backends := testBackends(t)
		queries := [][]float32{{0, 0}} // wrong dimensionality

		_, err := Run(ctx, backends, queries, 1, func(o *Options) {
			o.Warmup = 0
		})
		assert.Error(t, err)
	})
}

func TestTimeBuild(t *testing.T) {
	rng := testutil.NewRNG(42)
	c, err := corpus.New(rng.UniformVectors(50, 4))
	require.NoError(t, err)

	b, elapsed, err := TimeBuild("exact", func() (index.Index, error) {
		return exact.New(c)
	})
	require.NoError(t, err)
	assert.Equal(t, "exact", b.Name)
	assert.NotNil(t, b.Index)
	assert.Greater(t, elapsed, time.Duration(0))

	_, _, err = TimeBuild("exact", func() (index.Index, error) {
		return exact.New(nil)
	})
	assert.Error(t, err)
}

func TestReportString(t *testing.T) {
	r := &Report{
		K:      5,
		Rounds: 3,
		Stats: []Stats{
			{Name: "exact", Queries: 30, Mean: time.Millisecond},
			{Name: "hnsw", Queries: 30, Mean: time.Microsecond},
		},
	}

	out := r.String()
	assert.True(t, strings.HasPrefix(out, "k=5 rounds=3"))
	assert.Contains(t, out, "exact")
	assert.Contains(t, out, "hnsw")
	assert.Contains(t, out, "backend")
}
