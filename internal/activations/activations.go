// Package activations provides activation functions and their derivatives.
package activations

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x)
	Derivative(x float64) float64
}

// Kind names an activation function for configuration purposes.
type Kind string

const (
	KindSigmoid  Kind = "sigmoid"
	KindReLU     Kind = "relu"
	KindIdentity Kind = "identity"
)

// New returns the activation for the given kind.
// Unknown kinds are a configuration error.
func New(kind Kind) (Activation, error) {
	switch kind {
	case KindSigmoid:
		return Sigmoid{}, nil
	case KindReLU:
		return ReLU{}, nil
	case KindIdentity:
		return Identity{}, nil
	default:
		return nil, fmt.Errorf("activations: unknown kind %q (want %q or %q)", kind, KindSigmoid, KindReLU)
	}
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Sigmoid activation function.
type Sigmoid struct{}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

// Identity passes values through unchanged. Used where a layer's
// pre-activation is consumed directly (e.g. before a softmax output).
type Identity struct{}

// Activate returns x.
func (i Identity) Activate(x float64) float64 { return x }

// Derivative returns 1.
func (i Identity) Derivative(x float64) float64 { return 1 }

// Apply sets dst[i,j] = act(src[i,j]) for every element.
// dst and src must share dimensions; dst may alias src.
func Apply(dst, src *mat.Dense, act Activation) {
	dst.Apply(func(_, _ int, v float64) float64 {
		return act.Activate(v)
	}, src)
}

// Softmax writes the row-wise softmax of logits into dst.
// Each row is stabilized by subtracting its maximum before
// exponentiating, so every output row sums to 1.
func Softmax(dst, logits *mat.Dense) {
	rows, cols := logits.Dims()
	for i := 0; i < rows; i++ {
		row := logits.RawRowView(i)
		max := floats.Max(row)
		var sum float64
		out := dst.RawRowView(i)
		for j := 0; j < cols; j++ {
			out[j] = math.Exp(row[j] - max)
			sum += out[j]
		}
		for j := 0; j < cols; j++ {
			out[j] /= sum
		}
	}
}
