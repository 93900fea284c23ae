// Package opt provides per-layer parameter update rules.
//
// Each optimizer instance is paired with exactly one layer's ParamSet
// and owns accumulator state sized identically to it. State is
// allocated on the first Update and mutated in place on every later
// call; it is never reset mid-training.
package opt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/layer"
)

// Optimizer applies one gradient step to a layer's parameters in place.
type Optimizer interface {
	Update(p *layer.ParamSet, g *layer.GradSet)
}

// Kind names an update rule for configuration purposes.
type Kind string

const (
	KindSGD      Kind = "sgd"
	KindMomentum Kind = "momentum"
	KindAdaGrad  Kind = "adagrad"
	KindRMSProp  Kind = "rmsprop"
	KindAdam     Kind = "adam"
)

// Config holds optimizer hyperparameters. Zero values are replaced
// with defaults by New.
type Config struct {
	LearningRate float64
	Momentum     float64 // velocity decay, default 0.9
	Beta1        float64 // first-moment decay, default 0.9
	Beta2        float64 // second-moment decay, default 0.999
	Epsilon      float64 // denominator floor, default 1e-8
}

func (c Config) withDefaults() Config {
	if c.Momentum == 0 {
		c.Momentum = 0.9
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-8
	}
	return c
}

// New builds a fresh optimizer instance of the given kind. Every layer
// needs its own instance; sharing one across layers would entangle
// their accumulator state.
func New(kind Kind, cfg Config) (Optimizer, error) {
	cfg = cfg.withDefaults()
	switch kind {
	case KindSGD:
		return &SGD{LR: cfg.LearningRate}, nil
	case KindMomentum:
		return &Momentum{LR: cfg.LearningRate, Mu: cfg.Momentum}, nil
	case KindAdaGrad:
		return &AdaGrad{LR: cfg.LearningRate, Eps: cfg.Epsilon}, nil
	case KindRMSProp:
		return &RMSProp{LR: cfg.LearningRate, Beta2: cfg.Beta2, Eps: cfg.Epsilon}, nil
	case KindAdam:
		return &Adam{LR: cfg.LearningRate, Beta1: cfg.Beta1, Beta2: cfg.Beta2, Eps: cfg.Epsilon}, nil
	default:
		return nil, fmt.Errorf("opt: unknown kind %q", kind)
	}
}

// stateLike allocates zeroed accumulators shaped like the parameter set.
func stateLike(p *layer.ParamSet) (*mat.Dense, *mat.VecDense) {
	in, out := p.Dims()
	return mat.NewDense(in, out, nil), mat.NewVecDense(out, nil)
}

// SGD is plain stochastic gradient descent: param -= lr * grad.
type SGD struct {
	LR float64
}

// Update applies the SGD rule in place.
func (s *SGD) Update(p *layer.ParamSet, g *layer.GradSet) {
	applyPair(p, g, func(param, grad []float64) {
		for i := range param {
			param[i] -= s.LR * grad[i]
		}
	})
}

// Momentum accumulates a decaying velocity:
// v = mu*v - lr*grad; param += v.
type Momentum struct {
	LR float64
	Mu float64

	vW *mat.Dense
	vB *mat.VecDense
}

// Update applies the momentum rule in place.
func (m *Momentum) Update(p *layer.ParamSet, g *layer.GradSet) {
	if m.vW == nil {
		m.vW, m.vB = stateLike(p)
	}
	step := func(param, grad, v []float64) {
		for i := range param {
			v[i] = m.Mu*v[i] - m.LR*grad[i]
			param[i] += v[i]
		}
	}
	step(p.W.RawMatrix().Data, g.W.RawMatrix().Data, m.vW.RawMatrix().Data)
	step(p.B.RawVector().Data, g.B.RawVector().Data, m.vB.RawVector().Data)
}

// AdaGrad scales each step by the accumulated squared gradient:
// h += grad^2; param -= lr * grad / (sqrt(h) + eps).
type AdaGrad struct {
	LR  float64
	Eps float64

	hW *mat.Dense
	hB *mat.VecDense
}

// Update applies the AdaGrad rule in place.
func (a *AdaGrad) Update(p *layer.ParamSet, g *layer.GradSet) {
	if a.hW == nil {
		a.hW, a.hB = stateLike(p)
	}
	step := func(param, grad, h []float64) {
		for i := range param {
			h[i] += grad[i] * grad[i]
			param[i] -= a.LR * grad[i] / (math.Sqrt(h[i]) + a.Eps)
		}
	}
	step(p.W.RawMatrix().Data, g.W.RawMatrix().Data, a.hW.RawMatrix().Data)
	step(p.B.RawVector().Data, g.B.RawVector().Data, a.hB.RawVector().Data)
}

// RMSProp keeps an exponentially decaying squared-gradient average:
// h = beta2*h + (1-beta2)*grad^2; param -= lr * grad / (sqrt(h) + eps).
type RMSProp struct {
	LR    float64
	Beta2 float64
	Eps   float64

	hW *mat.Dense
	hB *mat.VecDense
}

// Update applies the RMSProp rule in place.
func (r *RMSProp) Update(p *layer.ParamSet, g *layer.GradSet) {
	if r.hW == nil {
		r.hW, r.hB = stateLike(p)
	}
	step := func(param, grad, h []float64) {
		for i := range param {
			h[i] = r.Beta2*h[i] + (1-r.Beta2)*grad[i]*grad[i]
			param[i] -= r.LR * grad[i] / (math.Sqrt(h[i]) + r.Eps)
		}
	}
	step(p.W.RawMatrix().Data, g.W.RawMatrix().Data, r.hW.RawMatrix().Data)
	step(p.B.RawVector().Data, g.B.RawVector().Data, r.hB.RawVector().Data)
}

// Adam keeps bias-corrected first and second moment estimates:
//
//	m = beta1*m + (1-beta1)*grad
//	v = beta2*v + (1-beta2)*grad^2
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
//
// where m_hat and v_hat divide out the decay accumulated over the step
// counter. Two calls with identical gradients therefore produce
// different deltas.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t  int
	mW *mat.Dense
	mB *mat.VecDense
	vW *mat.Dense
	vB *mat.VecDense
}

// Update applies the Adam rule in place and advances the step counter.
func (a *Adam) Update(p *layer.ParamSet, g *layer.GradSet) {
	if a.mW == nil {
		a.mW, a.mB = stateLike(p)
		a.vW, a.vB = stateLike(p)
	}
	a.t++
	corr1 := 1 - math.Pow(a.Beta1, float64(a.t))
	corr2 := 1 - math.Pow(a.Beta2, float64(a.t))

	step := func(param, grad, m, v []float64) {
		for i := range param {
			grd := grad[i]
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*grd
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*grd*grd
			mHat := m[i] / corr1
			vHat := v[i] / corr2
			param[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
	step(p.W.RawMatrix().Data, g.W.RawMatrix().Data, a.mW.RawMatrix().Data, a.vW.RawMatrix().Data)
	step(p.B.RawVector().Data, g.B.RawVector().Data, a.mB.RawVector().Data, a.vB.RawVector().Data)
}

// Timestep returns Adam's current step count.
func (a *Adam) Timestep() int { return a.t }

// applyPair runs fn over the weight pair then the bias pair.
func applyPair(p *layer.ParamSet, g *layer.GradSet, fn func(param, grad []float64)) {
	fn(p.W.RawMatrix().Data, g.W.RawMatrix().Data)
	fn(p.B.RawVector().Data, g.B.RawVector().Data)
}
