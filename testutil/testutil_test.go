package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)

	assert.Equal(t, a.UniformVectors(10, 4), b.UniformVectors(10, 4))

	a.Reset()
	c := NewRNG(42)
	assert.Equal(t, c.UniformVectors(5, 4), a.UniformVectors(5, 4))
}

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(1)
	vecs := rng.UniformVectors(100, 8)

	require.Len(t, vecs, 100)
	for _, v := range vecs {
		require.Len(t, v, 8)
		for _, x := range v {
			assert.GreaterOrEqual(t, x, float32(0))
			assert.Less(t, x, float32(1))
		}
	}
}

func TestRecordings(t *testing.T) {
	rng := NewRNG(1)
	recs := rng.Recordings(3, 20, 12)

	require.Len(t, recs, 3)
	for _, frames := range recs {
		require.Len(t, frames, 20)
		require.Len(t, frames[0], 12)
	}
	assert.Contains(t, recs, "rec-0")
	assert.Contains(t, recs, "rec-2")
}

func TestComputeRecall(t *testing.T) {
	truth := []SearchResult{{ID: 1}, {ID: 2}, {ID: 3}}

	assert.Equal(t, 1.0, ComputeRecall(truth, truth))
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))

	partial := []SearchResult{{ID: 1}, {ID: 9}, {ID: 3}}
	assert.InDelta(t, 2.0/3.0, ComputeRecall(truth, partial), 1e-9)
}

func TestBruteForceSearch(t *testing.T) {
	vectors := [][]float32{
		{0, 0},
		{3, 4},
		{1, 0},
	}

	res := BruteForceSearch(vectors, []float32{0, 0}, 2)
	require.Len(t, res, 2)

	assert.Equal(t, uint32(0), res[0].ID)
	assert.Equal(t, float32(0), res[0].Distance)
	assert.Equal(t, uint32(2), res[1].ID)
	assert.Equal(t, float32(1), res[1].Distance)
}
