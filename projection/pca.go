// Package projection provides the linear projector that turns shingles into
// the lower-dimensional items the indexes operate on.
package projection

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoSamples is returned when fitting on an empty sample set.
	ErrNoSamples = errors.New("projection: no samples")

	// ErrInsufficientData is returned when the sample set cannot support the
	// requested number of components.
	ErrInsufficientData = errors.New("projection: not enough samples for requested components")
)

// PCA projects vectors onto their top principal components. Fit once over the
// full shingle collection; Project is deterministic and dimension-consistent
// thereafter. When the target dimensionality is not below the input
// dimensionality the projector is the identity.
type PCA struct {
	in, out    int
	mean       []float64
	components *mat.Dense // in x out, nil for identity
}

// Fit computes a projector onto the top k principal components of samples.
func Fit(samples [][]float32, k int) (*PCA, error) {
	if k < 1 {
		return nil, fmt.Errorf("projection: invalid target dimension %d", k)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	in := len(samples[0])
	if k >= in {
		return &PCA{in: in, out: in}, nil
	}
	if len(samples) < 2 || k > len(samples)-1 {
		// Centered data has rank at most n-1.
		return nil, ErrInsufficientData
	}

	n := len(samples)
	data := mat.NewDense(n, in, nil)
	mean := make([]float64, in)
	for i, s := range samples {
		if len(s) != in {
			return nil, fmt.Errorf("projection: sample %d has dimension %d, want %d", i, len(s), in)
		}
		for j, v := range s {
			data.Set(i, j, float64(v))
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("projection: principal component decomposition failed")
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	_, cols := vecs.Dims()
	if k > cols {
		return nil, ErrInsufficientData
	}

	components := mat.DenseCopyOf(vecs.Slice(0, in, 0, k))

	return &PCA{in: in, out: k, mean: mean, components: components}, nil
}

// InDim returns the expected input dimensionality.
func (p *PCA) InDim() int { return p.in }

// OutDim returns the projected dimensionality.
func (p *PCA) OutDim() int { return p.out }

// Project maps a single vector into item space.
func (p *PCA) Project(v []float32) ([]float32, error) {
	if len(v) != p.in {
		return nil, fmt.Errorf("projection: vector has dimension %d, want %d", len(v), p.in)
	}

	if p.components == nil {
		out := make([]float32, p.in)
		copy(out, v)
		return out, nil
	}

	out := make([]float32, p.out)
	for j := 0; j < p.out; j++ {
		var sum float64
		for i := 0; i < p.in; i++ {
			sum += (float64(v[i]) - p.mean[i]) * p.components.At(i, j)
		}
		out[j] = float32(sum)
	}

	return out, nil
}

// ProjectAll maps a batch of vectors into item space.
func (p *PCA) ProjectAll(vs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vs))
	for i, v := range vs {
		projected, err := p.Project(v)
		if err != nil {
			return nil, err
		}
		out[i] = projected
	}
	return out, nil
}
