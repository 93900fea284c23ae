// Package grad computes parameter gradients for a stack of layers.
//
// Two engines implement the same contract: Analytic runs one cached
// forward pass and traverses the layers in reverse applying the chain
// rule; Numerical estimates every partial derivative independently by
// central differences. Both return one GradSet per layer, aligned with
// the layer order, with nil entries for parameterless layers.
package grad

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/layer"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/loss"
)

// Engine computes gradients of the loss w.r.t. every layer parameter.
// Engines never change parameter values; they may use the layers'
// internal forward caches.
type Engine interface {
	Gradients(layers []layer.Layer, x, target *mat.Dense) ([]*layer.GradSet, error)
}

// Analytic is the backpropagation engine. Cost is one forward and one
// backward pass per call, independent of the parameter count beyond
// the matrix products themselves.
type Analytic struct{}

// Gradients runs a training-mode forward pass, seeds the backward pass
// at the output layer from the targets, and propagates upstream
// gradients down to the first layer.
func (Analytic) Gradients(layers []layer.Layer, x, target *mat.Dense) ([]*layer.GradSet, error) {
	if len(layers) == 0 {
		return nil, errors.New("grad: no layers")
	}
	out, ok := layers[len(layers)-1].(layer.OutputLayer)
	if !ok {
		return nil, fmt.Errorf("grad: final layer %T cannot seed a backward pass from targets", layers[len(layers)-1])
	}

	for _, l := range layers {
		l.SetTraining(true)
	}
	defer func() {
		for _, l := range layers {
			l.SetTraining(false)
		}
	}()

	curr := x
	for _, l := range layers {
		curr = l.Forward(curr)
	}

	upstream := out.BackwardTargets(target)
	for i := len(layers) - 2; i >= 0; i-- {
		upstream = layers[i].Backward(upstream)
	}

	grads := make([]*layer.GradSet, len(layers))
	for i, l := range layers {
		if g := l.Grads(); g != nil {
			grads[i] = g.Clone()
		}
	}
	return grads, nil
}

// Numerical estimates each partial derivative by central differences:
// (loss(p+h) - loss(p-h)) / (2h), restoring the original value exactly
// after each probe. Every scalar parameter costs two full forward
// passes, so the engine is a correctness oracle for Analytic, not a
// training-scale strategy.
type Numerical struct {
	Loss loss.Loss
	Step float64
}

// NewNumerical creates a numerical engine with the standard step 1e-4.
func NewNumerical(l loss.Loss) *Numerical {
	return &Numerical{Loss: l, Step: 1e-4}
}

// Gradients sweeps every weight and bias component of every layer.
func (n *Numerical) Gradients(layers []layer.Layer, x, target *mat.Dense) ([]*layer.GradSet, error) {
	if len(layers) == 0 {
		return nil, errors.New("grad: no layers")
	}
	if n.Loss == nil {
		return nil, errors.New("grad: numerical engine needs a loss function")
	}
	h := n.Step
	if h == 0 {
		h = 1e-4
	}

	lossOf := func() float64 {
		curr := x
		for _, l := range layers {
			curr = l.Forward(curr)
		}
		return n.Loss.Forward(curr, target)
	}

	grads := make([]*layer.GradSet, len(layers))
	for i, l := range layers {
		p := l.Params()
		if p == nil {
			continue
		}
		in, out := p.Dims()
		g := layer.NewGradSet(in, out)
		sweep(p.W.RawMatrix().Data, g.W.RawMatrix().Data, lossOf, h)
		sweep(p.B.RawVector().Data, g.B.RawVector().Data, lossOf, h)
		grads[i] = g
	}
	return grads, nil
}

// sweep estimates the partial derivative for each component of params,
// one at a time, putting the exact original value back after probing.
func sweep(params, grads []float64, lossOf func() float64, h float64) {
	for i := range params {
		orig := params[i]

		params[i] = orig + h
		plus := lossOf()

		params[i] = orig - h
		minus := lossOf()

		params[i] = orig
		grads[i] = (plus - minus) / (2 * h)
	}
}
