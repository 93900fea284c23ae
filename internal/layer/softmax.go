package layer

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
)

// SoftmaxOutput is the classification output layer: an affine
// transform followed by a row-wise softmax. Its backward pass is the
// fused softmax-with-cross-entropy form (Y - T) / batch, which avoids
// materializing the softmax Jacobian.
type SoftmaxOutput struct {
	out int
	std float64
	src rand.Source

	params *ParamSet
	grads  *GradSet

	training bool
	input    *mat.Dense
	probs    *mat.Dense
}

// NewSoftmaxOutput creates a softmax output layer over `out` classes.
func NewSoftmaxOutput(out int, std float64, src rand.Source) *SoftmaxOutput {
	return &SoftmaxOutput{out: out, std: std, src: src}
}

// Initialize allocates the parameter and gradient sets.
func (s *SoftmaxOutput) Initialize(inputWidth int) (int, error) {
	if inputWidth <= 0 {
		return 0, fmt.Errorf("layer: softmax output input width must be positive, got %d", inputWidth)
	}
	s.params = NewParamSet(inputWidth, s.out, s.std, s.src)
	s.grads = NewGradSet(inputWidth, s.out)
	s.input = nil
	s.probs = nil
	return s.out, nil
}

// Forward computes softmax(x*W + b) row-wise. Every output row sums
// to one.
func (s *SoftmaxOutput) Forward(x *mat.Dense) *mat.Dense {
	a := affineForward(x, s.params)
	rows, cols := a.Dims()
	probs := mat.NewDense(rows, cols, nil)
	activations.Softmax(probs, a)
	if s.training {
		s.input = x
		s.probs = probs
	}
	return probs
}

// BackwardTargets seeds the backward pass from one-hot targets using
// the fused gradient (Y - T) / batch and returns the gradient w.r.t.
// the layer input.
func (s *SoftmaxOutput) BackwardTargets(target *mat.Dense) *mat.Dense {
	if s.probs == nil {
		panic("layer: BackwardTargets called before a training-mode Forward")
	}
	rows, cols := s.probs.Dims()
	tr, tc := target.Dims()
	if rows != tr || cols != tc {
		panic(fmt.Sprintf("layer: target shape (%d,%d) does not match output shape (%d,%d)", tr, tc, rows, cols))
	}

	da := mat.NewDense(rows, cols, nil)
	da.Sub(s.probs, target)
	da.Scale(1/float64(rows), da)

	return affineBackward(da, s.input, s.params, s.grads)
}

// Backward propagates an explicit pre-activation gradient through the
// affine transform. Classification training should use BackwardTargets.
func (s *SoftmaxOutput) Backward(upstream *mat.Dense) *mat.Dense {
	if s.input == nil {
		panic("layer: Backward called before a training-mode Forward")
	}
	return affineBackward(upstream, s.input, s.params, s.grads)
}

// Params returns the layer's parameter set.
func (s *SoftmaxOutput) Params() *ParamSet { return s.params }

// Grads returns the layer's gradient set.
func (s *SoftmaxOutput) Grads() *GradSet { return s.grads }

// OutputWidth returns the number of classes.
func (s *SoftmaxOutput) OutputWidth() int { return s.out }

// SetTraining toggles caching of backward-pass intermediates.
func (s *SoftmaxOutput) SetTraining(training bool) { s.training = training }
