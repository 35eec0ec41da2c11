package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenance(t *testing.T) {
	sources := []string{"rec-a", "rec-a", "rec-b", "rec-a", "rec-c"}
	p := NewProvenance(sources)

	t.Run("Lookup", func(t *testing.T) {
		assert.Equal(t, 5, p.Len())
		assert.Equal(t, "rec-b", p.Source(2))
		assert.Equal(t, []string{"rec-a", "rec-b", "rec-c"}, p.Recordings())
	})

	t.Run("Items", func(t *testing.T) {
		assert.Equal(t, []uint32{0, 1, 3}, p.Items("rec-a"))
		assert.Equal(t, []uint32{2}, p.Items("rec-b"))
		assert.Empty(t, p.Items("rec-z"))
	})

	t.Run("Filter", func(t *testing.T) {
		filter, err := p.Filter("rec-a", "rec-c")
		require.NoError(t, err)

		assert.True(t, filter(0))
		assert.True(t, filter(1))
		assert.False(t, filter(2))
		assert.True(t, filter(3))
		assert.True(t, filter(4))
	})

	t.Run("FilterUnknownRecording", func(t *testing.T) {
		_, err := p.Filter("rec-z")
		assert.Error(t, err)
	})

	t.Run("FilterNoRecordings", func(t *testing.T) {
		_, err := p.Filter()
		assert.Error(t, err)
	})
}
