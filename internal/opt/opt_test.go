package opt

import (
	"math"
	"testing"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/layer"
)

// scalarParam builds a 1x1 parameter set holding w with a gradient g.
func scalarParam(w, g float64) (*layer.ParamSet, *layer.GradSet) {
	p := layer.NewParamSet(1, 1, 0, nil)
	p.W.Set(0, 0, w)
	grads := layer.NewGradSet(1, 1)
	grads.W.Set(0, 0, g)
	return p, grads
}

// TestSGDUpdate tests param -= lr * grad on weights and biases.
func TestSGDUpdate(t *testing.T) {
	p := layer.NewParamSet(1, 2, 0, nil)
	p.W.Set(0, 0, 1)
	p.W.Set(0, 1, 2)
	p.B.SetVec(0, 0.5)

	g := layer.NewGradSet(1, 2)
	g.W.Set(0, 0, 0.1)
	g.W.Set(0, 1, -0.2)
	g.B.SetVec(0, 0.3)

	(&SGD{LR: 0.1}).Update(p, g)

	if got := p.W.At(0, 0); math.Abs(got-0.99) > 1e-12 {
		t.Errorf("W[0,0] = %v, want 0.99", got)
	}
	if got := p.W.At(0, 1); math.Abs(got-2.02) > 1e-12 {
		t.Errorf("W[0,1] = %v, want 2.02", got)
	}
	if got := p.B.AtVec(0); math.Abs(got-0.47) > 1e-12 {
		t.Errorf("B[0] = %v, want 0.47", got)
	}
}

// TestSGDZeroGradientIsIdentity tests that an all-zero gradient leaves
// parameters bit-identical.
func TestSGDZeroGradientIsIdentity(t *testing.T) {
	p, _ := scalarParam(1.2345678901234567, 0)
	g := layer.NewGradSet(1, 1)

	(&SGD{LR: 0.1}).Update(p, g)

	if got := p.W.At(0, 0); got != 1.2345678901234567 {
		t.Errorf("W[0,0] = %v, want unchanged 1.2345678901234567", got)
	}
}

// TestMomentumAccumulatesVelocity tests two hand-computed steps with
// the same gradient.
func TestMomentumAccumulatesVelocity(t *testing.T) {
	p, g := scalarParam(1, 0.1)
	m := &Momentum{LR: 0.1, Mu: 0.9}

	// v = -0.01, p = 0.99
	m.Update(p, g)
	if got := p.W.At(0, 0); math.Abs(got-0.99) > 1e-12 {
		t.Fatalf("after step 1: W = %v, want 0.99", got)
	}

	// v = 0.9*(-0.01) - 0.01 = -0.019, p = 0.971
	m.Update(p, g)
	if got := p.W.At(0, 0); math.Abs(got-0.971) > 1e-12 {
		t.Errorf("after step 2: W = %v, want 0.971", got)
	}
}

// TestAdaGradShrinksSteps tests the first hand-computed step and that
// the accumulated h makes the second step strictly smaller.
func TestAdaGradShrinksSteps(t *testing.T) {
	p, g := scalarParam(1, 0.5)
	a := &AdaGrad{LR: 0.1, Eps: 1e-8}

	// h = 0.25, step = 0.1 * 0.5 / (0.5 + eps) ~ 0.1
	a.Update(p, g)
	first := 1 - p.W.At(0, 0)
	if math.Abs(first-0.1) > 1e-7 {
		t.Fatalf("first step = %v, want ~0.1", first)
	}

	// h = 0.5, step = 0.1 * 0.5 / sqrt(0.5) ~ 0.0707
	before := p.W.At(0, 0)
	a.Update(p, g)
	second := before - p.W.At(0, 0)
	if math.Abs(second-0.1*0.5/math.Sqrt(0.5)) > 1e-7 {
		t.Errorf("second step = %v, want %v", second, 0.1*0.5/math.Sqrt(0.5))
	}
	if second >= first {
		t.Errorf("second step %v should be smaller than first %v", second, first)
	}
}

// TestRMSPropFirstStep tests the hand-computed decaying average.
func TestRMSPropFirstStep(t *testing.T) {
	p, g := scalarParam(1, 0.5)
	r := &RMSProp{LR: 0.1, Beta2: 0.99, Eps: 1e-8}

	// h = 0.01 * 0.25 = 0.0025, step = 0.1 * 0.5 / (0.05 + eps) ~ 1.0
	r.Update(p, g)
	if got := p.W.At(0, 0); math.Abs(got-0) > 1e-6 {
		t.Errorf("W = %v, want ~0", got)
	}
}

// TestAdamFirstStep tests the bias-corrected first step, which equals
// roughly lr * sign(grad).
func TestAdamFirstStep(t *testing.T) {
	p, g := scalarParam(1, 0.5)
	a := &Adam{LR: 0.1, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}

	// m_hat = g, v_hat = g^2, step = lr * g / (|g| + eps) ~ 0.1
	a.Update(p, g)
	if got := p.W.At(0, 0); math.Abs(got-0.9) > 1e-7 {
		t.Errorf("W = %v, want ~0.9", got)
	}
	if a.Timestep() != 1 {
		t.Errorf("Timestep() = %d, want 1", a.Timestep())
	}
}

// TestAdamStepsDiffer tests that identical gradients produce different
// deltas on consecutive calls, unlike SGD.
func TestAdamStepsDiffer(t *testing.T) {
	p, g := scalarParam(1, 0.5)
	a := &Adam{LR: 0.1, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}

	a.Update(p, g)
	first := 1 - p.W.At(0, 0)

	before := p.W.At(0, 0)
	a.Update(p, g)
	second := before - p.W.At(0, 0)

	if first == second {
		t.Errorf("consecutive Adam steps are both %v, want different", first)
	}
	if a.Timestep() != 2 {
		t.Errorf("Timestep() = %d, want 2", a.Timestep())
	}

	sp, sg := scalarParam(1, 0.5)
	s := &SGD{LR: 0.1}
	s.Update(sp, sg)
	sgdFirst := 1 - sp.W.At(0, 0)
	before = sp.W.At(0, 0)
	s.Update(sp, sg)
	sgdSecond := before - sp.W.At(0, 0)
	if math.Abs(sgdFirst-sgdSecond) > 1e-15 {
		t.Errorf("SGD steps differ (%v vs %v), want identical", sgdFirst, sgdSecond)
	}
}

// TestNewAppliesDefaults tests that New fills zero hyperparameters with
// the documented defaults.
func TestNewAppliesDefaults(t *testing.T) {
	o, err := New(KindAdam, Config{LearningRate: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	a, ok := o.(*Adam)
	if !ok {
		t.Fatalf("New(adam) returned %T", o)
	}
	if a.Beta1 != 0.9 || a.Beta2 != 0.999 || a.Eps != 1e-8 {
		t.Errorf("defaults = (%v, %v, %v), want (0.9, 0.999, 1e-8)", a.Beta1, a.Beta2, a.Eps)
	}

	o, err = New(KindMomentum, Config{LearningRate: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if m := o.(*Momentum); m.Mu != 0.9 {
		t.Errorf("momentum default = %v, want 0.9", m.Mu)
	}
}

// TestNewUnknownKind tests the factory's error path.
func TestNewUnknownKind(t *testing.T) {
	if _, err := New("nadam", Config{LearningRate: 0.1}); err == nil {
		t.Error("New(\"nadam\") should return an error")
	}
}

// TestInstancesDoNotShareState tests that two optimizer instances keep
// independent accumulators.
func TestInstancesDoNotShareState(t *testing.T) {
	p1, g1 := scalarParam(1, 0.5)
	p2, g2 := scalarParam(1, 0.5)

	a1 := &AdaGrad{LR: 0.1, Eps: 1e-8}
	a2 := &AdaGrad{LR: 0.1, Eps: 1e-8}

	a1.Update(p1, g1)
	a1.Update(p1, g1) // a1 has accumulated h twice
	a2.Update(p2, g2) // a2 only once

	// A fresh instance's first step must match p1's first step, not its
	// shrunken second one.
	if math.Abs((1-p2.W.At(0, 0))-0.1) > 1e-7 {
		t.Errorf("fresh instance first step = %v, want ~0.1", 1-p2.W.At(0, 0))
	}
}
