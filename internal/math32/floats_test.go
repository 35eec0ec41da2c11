package math32

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.Equal(t, float32(32), Dot(a, b))
}

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}
	assert.Equal(t, float32(25), SquaredL2(a, b))
	assert.Equal(t, float32(0), SquaredL2(a, a))
}

func TestL2(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.Equal(t, float32(5), L2(a, b))
}

func TestMagnitude(t *testing.T) {
	assert.Equal(t, float32(5), Magnitude([]float32{3, 4}))
}

func TestScaleInPlace(t *testing.T) {
	v := []float32{1, 2, 3}
	ScaleInPlace(v, 2)
	assert.Equal(t, []float32{2, 4, 6}, v)
}
