package layer

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParamSet holds one layer's learnable parameters: a weight matrix
// whose row count equals the layer's input width and whose column
// count equals its output width, and a bias vector of the output
// width. It is allocated once at initialization and mutated in place
// by the optimizer; it is never resized.
type ParamSet struct {
	W *mat.Dense
	B *mat.VecDense
}

// GradSet mirrors a ParamSet's shape and holds the gradients for one
// gradient computation. It is recomputed fully each iteration.
type GradSet struct {
	W *mat.Dense
	B *mat.VecDense
}

// NewParamSet allocates parameters for an in -> out transform.
// Weights are drawn from a zero-mean Gaussian with the given standard
// deviation; biases start at zero. A nil src falls back to the global
// random source.
func NewParamSet(in, out int, std float64, src rand.Source) *ParamSet {
	normal := distuv.Normal{Mu: 0, Sigma: std, Src: src}
	data := make([]float64, in*out)
	for i := range data {
		data[i] = normal.Rand()
	}
	return &ParamSet{
		W: mat.NewDense(in, out, data),
		B: mat.NewVecDense(out, nil),
	}
}

// Dims returns the input and output widths of the parameter set.
func (p *ParamSet) Dims() (in, out int) {
	return p.W.Dims()
}

// NewGradSet allocates a zeroed gradient set for an in -> out transform.
func NewGradSet(in, out int) *GradSet {
	return &GradSet{
		W: mat.NewDense(in, out, nil),
		B: mat.NewVecDense(out, nil),
	}
}

// Zero resets all gradient entries.
func (g *GradSet) Zero() {
	g.W.Zero()
	g.B.Zero()
}

// Clone returns a deep copy of the gradient set.
func (g *GradSet) Clone() *GradSet {
	c := &GradSet{}
	c.W = mat.DenseCopyOf(g.W)
	c.B = mat.VecDenseCopyOf(g.B)
	return c
}
