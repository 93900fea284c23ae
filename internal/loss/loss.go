// Package loss provides batch-averaged loss functions.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// clipEps keeps cross-entropy out of the log(0) domain.
const clipEps = 1e-7

// Loss computes a scalar loss over a batch of predictions.
// pred and target are (batch x classes) matrices; the result is
// averaged over the batch dimension.
type Loss interface {
	Forward(pred, target *mat.Dense) float64
}

// Kind names a loss function for configuration purposes.
type Kind string

const (
	KindCrossEntropy Kind = "cross_entropy"
	KindSquaredError Kind = "squared_error"
)

// New returns the loss for the given kind.
// Unknown kinds are a configuration error.
func New(kind Kind) (Loss, error) {
	switch kind {
	case KindCrossEntropy:
		return CrossEntropy{}, nil
	case KindSquaredError:
		return SquaredError{}, nil
	default:
		return nil, fmt.Errorf("loss: unknown kind %q (want %q or %q)", kind, KindCrossEntropy, KindSquaredError)
	}
}

// CrossEntropy is the categorical cross-entropy error for one-hot targets.
type CrossEntropy struct{}

// Forward computes -sum(target * log(pred)) / batch.
// Predictions are clipped away from zero before the log.
func (CrossEntropy) Forward(pred, target *mat.Dense) float64 {
	rows, cols := pred.Dims()
	tr, tc := target.Dims()
	if rows != tr || cols != tc {
		panic("loss: prediction and target must have same shape")
	}

	var sum float64
	for i := 0; i < rows; i++ {
		p := pred.RawRowView(i)
		t := target.RawRowView(i)
		for j := 0; j < cols; j++ {
			v := p[j]
			if v < clipEps {
				v = clipEps
			}
			sum -= t[j] * math.Log(v)
		}
	}
	return sum / float64(rows)
}

// SquaredError is the sum-of-squares error, halved and batch-averaged.
type SquaredError struct{}

// Forward computes sum((pred - target)^2) / (2 * batch).
func (SquaredError) Forward(pred, target *mat.Dense) float64 {
	rows, cols := pred.Dims()
	tr, tc := target.Dims()
	if rows != tr || cols != tc {
		panic("loss: prediction and target must have same shape")
	}

	var sum float64
	for i := 0; i < rows; i++ {
		p := pred.RawRowView(i)
		t := target.RawRowView(i)
		for j := 0; j < cols; j++ {
			d := p[j] - t[j]
			sum += d * d
		}
	}
	return sum / (2 * float64(rows))
}
