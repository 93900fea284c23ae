package layer

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
)

var (
	_ Layer       = (*Dense)(nil)
	_ Layer       = (*Conv2D)(nil)
	_ Layer       = (*MaxPool2D)(nil)
	_ OutputLayer = (*SoftmaxOutput)(nil)
)

// TestNewParamSetInitPolicy tests Gaussian weights and zero biases.
func TestNewParamSetInitPolicy(t *testing.T) {
	p := NewParamSet(3, 4, 0.01, rand.NewSource(1))

	in, out := p.Dims()
	if in != 3 || out != 4 {
		t.Fatalf("Dims() = (%d, %d), want (3, 4)", in, out)
	}

	var nonZero int
	for _, v := range p.W.RawMatrix().Data {
		if v != 0 {
			nonZero++
		}
		if math.Abs(v) > 0.1 {
			t.Errorf("weight %v implausibly large for std 0.01", v)
		}
	}
	if nonZero == 0 {
		t.Error("all weights are zero, want Gaussian draws")
	}

	for i := 0; i < out; i++ {
		if p.B.AtVec(i) != 0 {
			t.Errorf("bias[%d] = %v, want 0", i, p.B.AtVec(i))
		}
	}
}

// TestNewParamSetSeeded tests that the same source seed reproduces the
// same weights.
func TestNewParamSetSeeded(t *testing.T) {
	a := NewParamSet(2, 3, 0.01, rand.NewSource(42))
	b := NewParamSet(2, 3, 0.01, rand.NewSource(42))

	if !mat.Equal(a.W, b.W) {
		t.Error("same seed should produce identical weights")
	}
}

// TestDenseForward tests act(x*W + b) against hand-computed values.
func TestDenseForward(t *testing.T) {
	d := NewDense(2, activations.Identity{}, 0.01, rand.NewSource(1))
	if _, err := d.Initialize(2); err != nil {
		t.Fatal(err)
	}
	d.Params().W.SetRow(0, []float64{1, 2})
	d.Params().W.SetRow(1, []float64{3, 4})
	d.Params().B.SetVec(0, 0.5)
	d.Params().B.SetVec(1, -0.5)

	out := d.Forward(mat.NewDense(1, 2, []float64{1, 2}))

	want := []float64{7.5, 9.5}
	for j, w := range want {
		if got := out.At(0, j); math.Abs(got-w) > 1e-12 {
			t.Errorf("out[0,%d] = %v, want %v", j, got, w)
		}
	}
}

// TestDenseBackward tests dW = x^T dA, dB = column sums, dX = dA W^T
// on an identity-activation layer.
func TestDenseBackward(t *testing.T) {
	d := NewDense(2, activations.Identity{}, 0.01, rand.NewSource(1))
	if _, err := d.Initialize(2); err != nil {
		t.Fatal(err)
	}
	d.Params().W.SetRow(0, []float64{1, 2})
	d.Params().W.SetRow(1, []float64{3, 4})

	d.SetTraining(true)
	d.Forward(mat.NewDense(1, 2, []float64{1, 2}))
	dx := d.Backward(mat.NewDense(1, 2, []float64{1, 1}))

	wantW := [][]float64{{1, 1}, {2, 2}}
	for i := range wantW {
		for j, w := range wantW[i] {
			if got := d.Grads().W.At(i, j); math.Abs(got-w) > 1e-12 {
				t.Errorf("dW[%d,%d] = %v, want %v", i, j, got, w)
			}
		}
	}
	for j, w := range []float64{1, 1} {
		if got := d.Grads().B.AtVec(j); math.Abs(got-w) > 1e-12 {
			t.Errorf("dB[%d] = %v, want %v", j, got, w)
		}
	}
	for j, w := range []float64{3, 7} {
		if got := dx.At(0, j); math.Abs(got-w) > 1e-12 {
			t.Errorf("dX[0,%d] = %v, want %v", j, got, w)
		}
	}
}

// TestDenseBackwardBeforeForwardPanics tests the training-mode guard.
func TestDenseBackwardBeforeForwardPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Backward before a training forward should panic")
		}
	}()

	d := NewDense(2, activations.ReLU{}, 0.01, rand.NewSource(1))
	if _, err := d.Initialize(2); err != nil {
		t.Fatal(err)
	}
	d.Backward(mat.NewDense(1, 2, nil))
}

// TestDenseInferenceDoesNotCache tests that inference forwards leave no
// backward-pass intermediates behind.
func TestDenseInferenceDoesNotCache(t *testing.T) {
	d := NewDense(2, activations.Sigmoid{}, 0.01, rand.NewSource(1))
	if _, err := d.Initialize(3); err != nil {
		t.Fatal(err)
	}

	d.Forward(mat.NewDense(1, 3, []float64{1, 2, 3}))
	if d.preAct != nil || d.input != nil {
		t.Error("inference Forward should not cache intermediates")
	}
}

// TestSoftmaxOutputForward tests probabilities against hand-computed
// values and the rows-sum-to-one property.
func TestSoftmaxOutputForward(t *testing.T) {
	s := NewSoftmaxOutput(2, 0.01, rand.NewSource(1))
	if _, err := s.Initialize(2); err != nil {
		t.Fatal(err)
	}
	s.Params().W.SetRow(0, []float64{1, 0})
	s.Params().W.SetRow(1, []float64{0, 1})

	out := s.Forward(mat.NewDense(1, 2, []float64{1, 0}))

	p0 := math.Exp(1) / (math.Exp(1) + 1)
	if got := out.At(0, 0); math.Abs(got-p0) > 1e-12 {
		t.Errorf("probs[0,0] = %v, want %v", got, p0)
	}
	if sum := out.At(0, 0) + out.At(0, 1); math.Abs(sum-1) > 1e-12 {
		t.Errorf("row sums to %v, want 1", sum)
	}
}

// TestSoftmaxOutputBackwardTargets tests the fused (Y - T) / batch
// gradient.
func TestSoftmaxOutputBackwardTargets(t *testing.T) {
	s := NewSoftmaxOutput(2, 0.01, rand.NewSource(1))
	if _, err := s.Initialize(2); err != nil {
		t.Fatal(err)
	}
	s.Params().W.SetRow(0, []float64{1, 0})
	s.Params().W.SetRow(1, []float64{0, 1})

	s.SetTraining(true)
	out := s.Forward(mat.NewDense(1, 2, []float64{1, 0}))
	s.BackwardTargets(mat.NewDense(1, 2, []float64{1, 0}))

	// Batch of one: dB = Y - T.
	wantB := []float64{out.At(0, 0) - 1, out.At(0, 1)}
	for j, w := range wantB {
		if got := s.Grads().B.AtVec(j); math.Abs(got-w) > 1e-12 {
			t.Errorf("dB[%d] = %v, want %v", j, got, w)
		}
	}
	// dW = x^T (Y - T) with x = [1, 0]: second row stays zero.
	if got := s.Grads().W.At(1, 0); got != 0 {
		t.Errorf("dW[1,0] = %v, want 0", got)
	}
	if got := s.Grads().W.At(0, 0); math.Abs(got-wantB[0]) > 1e-12 {
		t.Errorf("dW[0,0] = %v, want %v", got, wantB[0])
	}
}

// TestConv2DInitializeShapes tests output width and the fail-fast shape
// mismatch at initialization.
func TestConv2DInitializeShapes(t *testing.T) {
	c := NewConv2D(1, 4, 4, 2, 3, 1, 1, activations.ReLU{}, 0.01, rand.NewSource(1))

	out, err := c.Initialize(16)
	if err != nil {
		t.Fatal(err)
	}
	// Padding 1 keeps the 4x4 spatial shape: 2 channels * 4 * 4.
	if out != 32 {
		t.Errorf("output width = %d, want 32", out)
	}

	bad := NewConv2D(1, 4, 4, 2, 3, 1, 1, activations.ReLU{}, 0.01, rand.NewSource(1))
	if _, err := bad.Initialize(15); err == nil {
		t.Error("Initialize with mismatched input width should fail")
	}
}

// TestConv2DForwardKnownValues tests a 3x3 input under an all-ones 2x2
// kernel against hand-computed window sums.
func TestConv2DForwardKnownValues(t *testing.T) {
	c := NewConv2D(1, 3, 3, 1, 2, 1, 0, activations.Identity{}, 0.01, rand.NewSource(1))
	if _, err := c.Initialize(9); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		c.Params().W.Set(i, 0, 1)
	}

	x := mat.NewDense(1, 9, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	out := c.Forward(x)

	want := []float64{12, 16, 24, 28}
	for j, w := range want {
		if got := out.At(0, j); math.Abs(got-w) > 1e-12 {
			t.Errorf("out[0,%d] = %v, want %v", j, got, w)
		}
	}
}

// TestMaxPool2DForwardBackward tests window maxima and arg-max gradient
// routing.
func TestMaxPool2DForwardBackward(t *testing.T) {
	m := NewMaxPool2D(1, 4, 4, 2, 2)
	out, err := m.Initialize(16)
	if err != nil {
		t.Fatal(err)
	}
	if out != 4 {
		t.Fatalf("output width = %d, want 4", out)
	}

	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i + 1)
	}
	x := mat.NewDense(1, 16, data)

	m.SetTraining(true)
	pooled := m.Forward(x)
	for j, w := range []float64{6, 8, 14, 16} {
		if got := pooled.At(0, j); got != w {
			t.Errorf("pooled[0,%d] = %v, want %v", j, got, w)
		}
	}

	dx := m.Backward(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	wantAt := map[int]float64{5: 1, 7: 2, 13: 3, 15: 4}
	for i := 0; i < 16; i++ {
		want := wantAt[i]
		if got := dx.At(0, i); got != want {
			t.Errorf("dX[0,%d] = %v, want %v", i, got, want)
		}
	}
}

// TestMaxPool2DHasNoParams tests the parameterless contract.
func TestMaxPool2DHasNoParams(t *testing.T) {
	m := NewMaxPool2D(1, 4, 4, 2, 2)
	if m.Params() != nil || m.Grads() != nil {
		t.Error("max pool should report nil params and grads")
	}
}
