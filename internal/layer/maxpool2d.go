package layer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxPool2D is a parameterless max-pooling layer over flattened
// (channels x height x width) rows. It records the arg-max position of
// every pooling window during a training forward pass and routes the
// upstream gradient back to those positions.
type MaxPool2D struct {
	channels int
	inHeight int
	inWidth  int
	kernel   int
	stride   int

	outHeight int
	outWidth  int

	training bool
	argmax   [][]int // per batch row, per output element: input index of the max
}

// NewMaxPool2D creates a max-pooling layer with an explicitly declared
// spatial input shape.
func NewMaxPool2D(channels, inHeight, inWidth, kernel, stride int) *MaxPool2D {
	return &MaxPool2D{
		channels: channels,
		inHeight: inHeight,
		inWidth:  inWidth,
		kernel:   kernel,
		stride:   stride,
	}
}

// Initialize validates the declared input shape.
func (m *MaxPool2D) Initialize(inputWidth int) (int, error) {
	want := m.channels * m.inHeight * m.inWidth
	if inputWidth != want {
		return 0, fmt.Errorf("layer: maxpool2d declared input %dx%dx%d (= %d) but previous layer outputs width %d",
			m.channels, m.inHeight, m.inWidth, want, inputWidth)
	}
	if m.stride <= 0 {
		return 0, fmt.Errorf("layer: maxpool2d stride must be positive, got %d", m.stride)
	}
	m.outHeight = (m.inHeight-m.kernel)/m.stride + 1
	m.outWidth = (m.inWidth-m.kernel)/m.stride + 1
	if m.outHeight <= 0 || m.outWidth <= 0 {
		return 0, fmt.Errorf("layer: maxpool2d kernel %d with stride %d does not fit input %dx%d",
			m.kernel, m.stride, m.inHeight, m.inWidth)
	}
	m.argmax = nil
	return m.OutputWidth(), nil
}

// Forward takes the maximum of every pooling window.
func (m *MaxPool2D) Forward(x *mat.Dense) *mat.Dense {
	batch, width := x.Dims()
	if width != m.channels*m.inHeight*m.inWidth {
		panic(fmt.Sprintf("layer: maxpool2d input width %d does not match declared shape", width))
	}

	out := mat.NewDense(batch, m.OutputWidth(), nil)
	if m.training {
		m.argmax = make([][]int, batch)
	}
	for b := 0; b < batch; b++ {
		in := x.RawRowView(b)
		dst := out.RawRowView(b)
		var arg []int
		if m.training {
			arg = make([]int, m.OutputWidth())
			m.argmax[b] = arg
		}
		for ch := 0; ch < m.channels; ch++ {
			for oh := 0; oh < m.outHeight; oh++ {
				for ow := 0; ow < m.outWidth; ow++ {
					best := math.Inf(-1)
					bestIdx := -1
					for kh := 0; kh < m.kernel; kh++ {
						ih := oh*m.stride + kh
						for kw := 0; kw < m.kernel; kw++ {
							iw := ow*m.stride + kw
							idx := (ch*m.inHeight+ih)*m.inWidth + iw
							if in[idx] > best {
								best = in[idx]
								bestIdx = idx
							}
						}
					}
					outIdx := (ch*m.outHeight+oh)*m.outWidth + ow
					dst[outIdx] = best
					if arg != nil {
						arg[outIdx] = bestIdx
					}
				}
			}
		}
	}
	return out
}

// Backward routes each upstream gradient entry to the input position
// that produced the window maximum.
func (m *MaxPool2D) Backward(upstream *mat.Dense) *mat.Dense {
	if m.argmax == nil {
		panic("layer: Backward called before a training-mode Forward")
	}
	batch, _ := upstream.Dims()
	dx := mat.NewDense(batch, m.channels*m.inHeight*m.inWidth, nil)
	for b := 0; b < batch; b++ {
		g := upstream.RawRowView(b)
		dIn := dx.RawRowView(b)
		for outIdx, inIdx := range m.argmax[b] {
			dIn[inIdx] += g[outIdx]
		}
	}
	return dx
}

// Params returns nil: the layer has no parameters.
func (m *MaxPool2D) Params() *ParamSet { return nil }

// Grads returns nil: the layer has no parameters.
func (m *MaxPool2D) Grads() *GradSet { return nil }

// OutputWidth returns channels * outHeight * outWidth.
func (m *MaxPool2D) OutputWidth() int {
	return m.channels * m.outHeight * m.outWidth
}

// SetTraining toggles recording of pooling arg-max positions.
func (m *MaxPool2D) SetTraining(training bool) { m.training = training }
