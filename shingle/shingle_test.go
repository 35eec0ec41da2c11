package shingle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureSequence(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		seq, err := NewFeatureSequence("rec-a", [][]float32{{1, 2}, {3, 4}, {5, 6}})
		require.NoError(t, err)
		assert.Equal(t, "rec-a", seq.ID())
		assert.Equal(t, 3, seq.Len())
		assert.Equal(t, 2, seq.Dim())
		assert.Equal(t, []float32{3, 4}, seq.Frame(1))
	})

	t.Run("NoFrames", func(t *testing.T) {
		_, err := NewFeatureSequence("rec-a", nil)
		assert.ErrorIs(t, err, ErrNoFrames)
	})

	t.Run("RaggedFrames", func(t *testing.T) {
		_, err := NewFeatureSequence("rec-a", [][]float32{{1, 2}, {3}})
		assert.Error(t, err)
	})

	t.Run("FramesCopied", func(t *testing.T) {
		frames := [][]float32{{1, 2}}
		seq, err := NewFeatureSequence("rec-a", frames)
		require.NoError(t, err)

		frames[0][0] = 99
		assert.Equal(t, float32(1), seq.Frame(0)[0])
	})
}

func TestGenerate(t *testing.T) {
	t.Run("FlattenOrder", func(t *testing.T) {
		// Shingle i is the concatenation of frames [i, i+window).
		seq, err := NewFeatureSequence("rec-a", [][]float32{
			{1, 2},
			{3, 4},
			{5, 6},
			{7, 8},
		})
		require.NoError(t, err)

		vecs, err := Generate(seq, 2)
		require.NoError(t, err)
		require.Len(t, vecs, 3)

		assert.Equal(t, []float32{1, 2, 3, 4}, vecs[0])
		assert.Equal(t, []float32{3, 4, 5, 6}, vecs[1])
		assert.Equal(t, []float32{5, 6, 7, 8}, vecs[2])
	})

	t.Run("WindowEqualsLength", func(t *testing.T) {
		seq, err := NewFeatureSequence("rec-a", [][]float32{{1}, {2}, {3}})
		require.NoError(t, err)

		vecs, err := Generate(seq, 3)
		require.NoError(t, err)
		require.Len(t, vecs, 1)
		assert.Equal(t, []float32{1, 2, 3}, vecs[0])
	})

	t.Run("SequenceShorterThanWindow", func(t *testing.T) {
		seq, err := NewFeatureSequence("rec-a", [][]float32{{1}, {2}})
		require.NoError(t, err)

		vecs, err := Generate(seq, 5)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		seq, err := NewFeatureSequence("rec-a", [][]float32{{1}})
		require.NoError(t, err)

		_, err = Generate(seq, 0)
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})
}

func TestCollection(t *testing.T) {
	t.Run("AddTracksProvenance", func(t *testing.T) {
		col, err := NewCollection(2)
		require.NoError(t, err)

		a, err := NewFeatureSequence("rec-a", [][]float32{{1, 0}, {2, 0}, {3, 0}})
		require.NoError(t, err)
		b, err := NewFeatureSequence("rec-b", [][]float32{{4, 0}, {5, 0}, {6, 0}, {7, 0}})
		require.NoError(t, err)

		n, err := col.Add(a)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = col.Add(b)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		assert.Equal(t, 5, col.Len())
		assert.Equal(t, 4, col.Dim())
		assert.Equal(t, []string{"rec-a", "rec-a", "rec-b", "rec-b", "rec-b"}, col.Sources())
	})

	t.Run("ShortSequenceContributesNothing", func(t *testing.T) {
		col, err := NewCollection(4)
		require.NoError(t, err)

		seq, err := NewFeatureSequence("rec-a", [][]float32{{1}, {2}})
		require.NoError(t, err)

		n, err := col.Add(seq)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 0, col.Len())
	})

	t.Run("DimensionMismatchAcrossRecordings", func(t *testing.T) {
		col, err := NewCollection(2)
		require.NoError(t, err)

		a, err := NewFeatureSequence("rec-a", [][]float32{{1, 0}, {2, 0}})
		require.NoError(t, err)
		b, err := NewFeatureSequence("rec-b", [][]float32{{1}, {2}})
		require.NoError(t, err)

		_, err = col.Add(a)
		require.NoError(t, err)

		_, err = col.Add(b)
		assert.Error(t, err)
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		_, err := NewCollection(0)
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})
}
