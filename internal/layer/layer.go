// Package layer provides neural network layer implementations.
package layer

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
)

// Layer is a neural network layer. Inputs and outputs are
// (batch x width) matrices.
//
// Initialize must be called before the first Forward; it allocates the
// layer's parameters and gradients sized to the given input width and
// returns the layer's output width. Forward caches the intermediates
// needed by Backward only while training mode is on. Backward consumes
// the gradient flowing from the next layer, fills this layer's GradSet
// as a side effect and returns the gradient to propagate upstream.
type Layer interface {
	Initialize(inputWidth int) (outputWidth int, err error)
	Forward(x *mat.Dense) *mat.Dense
	Backward(upstream *mat.Dense) *mat.Dense

	// Params and Grads return nil for parameterless layers.
	Params() *ParamSet
	Grads() *GradSet

	OutputWidth() int
	SetTraining(training bool)
}

// OutputLayer is the final layer of a classification network. Its
// backward pass starts from the one-hot targets rather than from an
// upstream gradient.
type OutputLayer interface {
	Layer
	BackwardTargets(target *mat.Dense) *mat.Dense
}

// Dense is a fully connected layer fused with its activation:
// output = act(x*W + b).
type Dense struct {
	out int
	act activations.Activation
	std float64
	src rand.Source

	params *ParamSet
	grads  *GradSet

	training bool
	input    *mat.Dense // cached training input
	preAct   *mat.Dense // cached pre-activation A = x*W + b
}

// NewDense creates a dense layer with the given output width and
// activation. The input width is inferred at Initialize. std is the
// weight initialization standard deviation; src may be nil.
func NewDense(out int, act activations.Activation, std float64, src rand.Source) *Dense {
	return &Dense{out: out, act: act, std: std, src: src}
}

// Initialize allocates the parameter and gradient sets.
func (d *Dense) Initialize(inputWidth int) (int, error) {
	if inputWidth <= 0 {
		return 0, fmt.Errorf("layer: dense input width must be positive, got %d", inputWidth)
	}
	d.params = NewParamSet(inputWidth, d.out, d.std, d.src)
	d.grads = NewGradSet(inputWidth, d.out)
	d.input = nil
	d.preAct = nil
	return d.out, nil
}

// Forward computes act(x*W + b), broadcasting the bias over batch rows.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	a := affineForward(x, d.params)
	if d.training {
		d.input = x
		d.preAct = a
	}
	rows, cols := a.Dims()
	out := mat.NewDense(rows, cols, nil)
	activations.Apply(out, a, d.act)
	return out
}

// Backward propagates the upstream gradient through the activation and
// the affine transform, filling this layer's gradients.
func (d *Dense) Backward(upstream *mat.Dense) *mat.Dense {
	if d.preAct == nil {
		panic("layer: Backward called before a training-mode Forward")
	}

	// dA = upstream (.) act'(A)
	rows, cols := upstream.Dims()
	da := mat.NewDense(rows, cols, nil)
	da.Apply(func(i, j int, v float64) float64 {
		return v * d.act.Derivative(d.preAct.At(i, j))
	}, upstream)

	return affineBackward(da, d.input, d.params, d.grads)
}

// Params returns the layer's parameter set.
func (d *Dense) Params() *ParamSet { return d.params }

// Grads returns the layer's gradient set.
func (d *Dense) Grads() *GradSet { return d.grads }

// OutputWidth returns the layer's output width.
func (d *Dense) OutputWidth() int { return d.out }

// SetTraining toggles caching of backward-pass intermediates.
func (d *Dense) SetTraining(training bool) { d.training = training }

// affineForward computes x*W + b with the bias broadcast over rows.
func affineForward(x *mat.Dense, p *ParamSet) *mat.Dense {
	xr, xc := x.Dims()
	in, out := p.Dims()
	if xc != in {
		panic(fmt.Sprintf("layer: input width %d does not match weight rows %d", xc, in))
	}
	a := mat.NewDense(xr, out, nil)
	a.Mul(x, p.W)
	bias := p.B.RawVector().Data
	for i := 0; i < xr; i++ {
		row := a.RawRowView(i)
		for j := 0; j < out; j++ {
			row[j] += bias[j]
		}
	}
	return a
}

// affineBackward fills grads from the pre-activation gradient da and
// the cached layer input, and returns the gradient w.r.t. the input:
//
//	dB = column sums of da
//	dW = input^T * da
//	dX = da * W^T
func affineBackward(da, input *mat.Dense, p *ParamSet, g *GradSet) *mat.Dense {
	rows, cols := da.Dims()

	bias := g.B.RawVector().Data
	for j := range bias {
		bias[j] = 0
	}
	for i := 0; i < rows; i++ {
		row := da.RawRowView(i)
		for j := 0; j < cols; j++ {
			bias[j] += row[j]
		}
	}

	g.W.Mul(input.T(), da)

	xr, _ := input.Dims()
	in, _ := p.Dims()
	dx := mat.NewDense(xr, in, nil)
	dx.Mul(da, p.W.T())
	return dx
}
