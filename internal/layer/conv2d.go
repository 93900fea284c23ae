package layer

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
)

// Conv2D is a 2D convolutional layer fused with its activation. Each
// input row is a flattened (channels x height x width) volume; each
// output row is the flattened (outChannels x outHeight x outWidth)
// result. Kernels are stored as a (inChannels*kernel*kernel) x
// outChannels weight matrix so the layer exposes the same ParamSet
// contract as Dense and shares the optimizer bank unchanged.
type Conv2D struct {
	inChannels  int
	inHeight    int
	inWidth     int
	outChannels int
	kernel      int
	stride      int
	padding     int

	outHeight int
	outWidth  int

	act activations.Activation
	std float64
	src rand.Source

	params *ParamSet
	grads  *GradSet

	training bool
	input    *mat.Dense
	preAct   *mat.Dense
}

// NewConv2D creates a convolutional layer. The spatial input shape is
// declared explicitly and validated against the inferred input width
// at Initialize.
func NewConv2D(inChannels, inHeight, inWidth, outChannels, kernel, stride, padding int,
	act activations.Activation, std float64, src rand.Source) *Conv2D {
	return &Conv2D{
		inChannels:  inChannels,
		inHeight:    inHeight,
		inWidth:     inWidth,
		outChannels: outChannels,
		kernel:      kernel,
		stride:      stride,
		padding:     padding,
		act:         act,
		std:         std,
		src:         src,
	}
}

// Initialize validates the declared input shape and allocates kernels.
func (c *Conv2D) Initialize(inputWidth int) (int, error) {
	want := c.inChannels * c.inHeight * c.inWidth
	if inputWidth != want {
		return 0, fmt.Errorf("layer: conv2d declared input %dx%dx%d (= %d) but previous layer outputs width %d",
			c.inChannels, c.inHeight, c.inWidth, want, inputWidth)
	}
	if c.stride <= 0 {
		return 0, fmt.Errorf("layer: conv2d stride must be positive, got %d", c.stride)
	}
	c.outHeight = (c.inHeight+2*c.padding-c.kernel)/c.stride + 1
	c.outWidth = (c.inWidth+2*c.padding-c.kernel)/c.stride + 1
	if c.outHeight <= 0 || c.outWidth <= 0 {
		return 0, fmt.Errorf("layer: conv2d kernel %d with stride %d and padding %d does not fit input %dx%d",
			c.kernel, c.stride, c.padding, c.inHeight, c.inWidth)
	}

	kernelIn := c.inChannels * c.kernel * c.kernel
	c.params = NewParamSet(kernelIn, c.outChannels, c.std, c.src)
	c.grads = NewGradSet(kernelIn, c.outChannels)
	c.input = nil
	c.preAct = nil
	return c.OutputWidth(), nil
}

// Forward computes the direct convolution plus bias, then applies the
// activation elementwise.
func (c *Conv2D) Forward(x *mat.Dense) *mat.Dense {
	batch, width := x.Dims()
	if width != c.inChannels*c.inHeight*c.inWidth {
		panic(fmt.Sprintf("layer: conv2d input width %d does not match declared shape", width))
	}

	preAct := mat.NewDense(batch, c.OutputWidth(), nil)
	bias := c.params.B.RawVector().Data
	for b := 0; b < batch; b++ {
		in := x.RawRowView(b)
		out := preAct.RawRowView(b)
		for o := 0; o < c.outChannels; o++ {
			for oh := 0; oh < c.outHeight; oh++ {
				for ow := 0; ow < c.outWidth; ow++ {
					sum := bias[o]
					for ch := 0; ch < c.inChannels; ch++ {
						for kh := 0; kh < c.kernel; kh++ {
							ih := oh*c.stride - c.padding + kh
							if ih < 0 || ih >= c.inHeight {
								continue
							}
							for kw := 0; kw < c.kernel; kw++ {
								iw := ow*c.stride - c.padding + kw
								if iw < 0 || iw >= c.inWidth {
									continue
								}
								w := c.params.W.At((ch*c.kernel+kh)*c.kernel+kw, o)
								sum += w * in[(ch*c.inHeight+ih)*c.inWidth+iw]
							}
						}
					}
					out[(o*c.outHeight+oh)*c.outWidth+ow] = sum
				}
			}
		}
	}

	if c.training {
		c.input = x
		c.preAct = preAct
	}
	out := mat.NewDense(batch, c.OutputWidth(), nil)
	activations.Apply(out, preAct, c.act)
	return out
}

// Backward routes the upstream gradient through the activation, then
// accumulates kernel, bias and input gradients by reversing the
// forward loops.
func (c *Conv2D) Backward(upstream *mat.Dense) *mat.Dense {
	if c.preAct == nil {
		panic("layer: Backward called before a training-mode Forward")
	}
	batch, _ := upstream.Dims()

	da := mat.NewDense(batch, c.OutputWidth(), nil)
	da.Apply(func(i, j int, v float64) float64 {
		return v * c.act.Derivative(c.preAct.At(i, j))
	}, upstream)

	c.grads.Zero()
	gradB := c.grads.B.RawVector().Data
	dx := mat.NewDense(batch, c.inChannels*c.inHeight*c.inWidth, nil)

	for b := 0; b < batch; b++ {
		in := c.input.RawRowView(b)
		dIn := dx.RawRowView(b)
		dOut := da.RawRowView(b)
		for o := 0; o < c.outChannels; o++ {
			for oh := 0; oh < c.outHeight; oh++ {
				for ow := 0; ow < c.outWidth; ow++ {
					g := dOut[(o*c.outHeight+oh)*c.outWidth+ow]
					if g == 0 {
						continue
					}
					gradB[o] += g
					for ch := 0; ch < c.inChannels; ch++ {
						for kh := 0; kh < c.kernel; kh++ {
							ih := oh*c.stride - c.padding + kh
							if ih < 0 || ih >= c.inHeight {
								continue
							}
							for kw := 0; kw < c.kernel; kw++ {
								iw := ow*c.stride - c.padding + kw
								if iw < 0 || iw >= c.inWidth {
									continue
								}
								kRow := (ch*c.kernel+kh)*c.kernel + kw
								iIdx := (ch*c.inHeight+ih)*c.inWidth + iw
								c.grads.W.Set(kRow, o, c.grads.W.At(kRow, o)+g*in[iIdx])
								dIn[iIdx] += g * c.params.W.At(kRow, o)
							}
						}
					}
				}
			}
		}
	}
	return dx
}

// Params returns the layer's parameter set.
func (c *Conv2D) Params() *ParamSet { return c.params }

// Grads returns the layer's gradient set.
func (c *Conv2D) Grads() *GradSet { return c.grads }

// OutputWidth returns outChannels * outHeight * outWidth.
func (c *Conv2D) OutputWidth() int {
	return c.outChannels * c.outHeight * c.outWidth
}

// SetTraining toggles caching of backward-pass intermediates.
func (c *Conv2D) SetTraining(training bool) { c.training = training }
