// Package deepnet re-exports the training engine's public surface for
// library consumers.
package deepnet

import (
	"golang.org/x/exp/rand"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/encoding"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/layer"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/loss"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/net"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/opt"
)

// Re-export common types for easier access.
type (
	Network    = net.Network
	Config     = net.Config
	Layer      = layer.Layer
	Optimizer  = opt.Optimizer
	Loss       = loss.Loss
	Activation = activations.Activation
	OneHot     = encoding.OneHot
	Callback   = net.Callback
)

// Loss kinds.
const (
	CrossEntropy = loss.KindCrossEntropy
	SquaredError = loss.KindSquaredError
)

// Solver kinds.
const (
	SGD      = opt.KindSGD
	Momentum = opt.KindMomentum
	AdaGrad  = opt.KindAdaGrad
	RMSProp  = opt.KindRMSProp
	Adam     = opt.KindAdam
)

// Activation kinds.
const (
	Sigmoid  = activations.KindSigmoid
	ReLU     = activations.KindReLU
	Identity = activations.KindIdentity
)

// Model creation.
func NewNetwork(cfg Config, inputWidth int, layers ...Layer) (*Network, error) {
	return net.New(cfg, inputWidth, layers...)
}

func NewFeedForward(cfg Config, inputWidth, hiddenWidth, numLayers, outputWidth int, activation activations.Kind) (*Network, error) {
	return net.NewFeedForward(cfg, inputWidth, hiddenWidth, numLayers, outputWidth, activation)
}

// Layers.
func Dense(out int, activation activations.Kind, std float64, src rand.Source) (Layer, error) {
	act, err := activations.New(activation)
	if err != nil {
		return nil, err
	}
	return layer.NewDense(out, act, std, src), nil
}

func SoftmaxOutput(out int, std float64, src rand.Source) Layer {
	return layer.NewSoftmaxOutput(out, std, src)
}

func Conv2D(inChannels, inHeight, inWidth, outChannels, kernel, stride, padding int,
	activation activations.Kind, std float64, src rand.Source) (Layer, error) {
	act, err := activations.New(activation)
	if err != nil {
		return nil, err
	}
	return layer.NewConv2D(inChannels, inHeight, inWidth, outChannels, kernel, stride, padding, act, std, src), nil
}

func MaxPool2D(channels, inHeight, inWidth, kernel, stride int) Layer {
	return layer.NewMaxPool2D(channels, inHeight, inWidth, kernel, stride)
}

// Encoding.
func FitOneHot(labels []float64) *OneHot {
	return encoding.Fit(labels)
}

// Callbacks.
func Logger(interval int) Callback {
	return net.TrainLogger{Interval: interval}
}
