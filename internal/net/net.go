// Package net assembles layers, a gradient engine and an optimizer
// bank into a trainable classification network.
package net

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/encoding"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/grad"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/layer"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/loss"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/opt"
)

// Config holds the network hyperparameters. Zero values fall back to
// defaults where one exists; LearningRate must be set explicitly.
type Config struct {
	Loss          loss.Kind // default cross_entropy
	Solver        opt.Kind  // default sgd
	LearningRate  float64
	WeightInitStd float64 // default 0.01
	BatchSize     int     // default 32
	Iterations    int     // default 1000

	// Solver hyperparameters; zero values use the opt defaults.
	Momentum float64
	Beta1    float64
	Beta2    float64
	Epsilon  float64

	Seed uint64

	// Numerical selects the central-difference gradient engine
	// instead of backpropagation.
	Numerical bool
}

func (c Config) withDefaults() Config {
	if c.Loss == "" {
		c.Loss = loss.KindCrossEntropy
	}
	if c.Solver == "" {
		c.Solver = opt.KindSGD
	}
	if c.WeightInitStd == 0 {
		c.WeightInitStd = 0.01
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.Iterations == 0 {
		c.Iterations = 1000
	}
	return c
}

// Network is an ordered stack of layers with a per-layer optimizer
// bank. The topology is immutable after construction; parameters and
// optimizer state are (re)allocated by InitializeParameters.
type Network struct {
	cfg        Config
	inputWidth int
	layers     []layer.Layer
	lossFn     loss.Loss
	engine     grad.Engine
	optims     []opt.Optimizer
	encoder    *encoding.OneHot
	rng        *rand.Rand

	initialized bool
	lossHistory []float64
}

// New creates a network over the given layers. Configuration errors
// (unknown loss or solver kind, missing learning rate, empty topology)
// are reported immediately.
func New(cfg Config, inputWidth int, layers ...layer.Layer) (*Network, error) {
	cfg = cfg.withDefaults()
	if inputWidth <= 0 {
		return nil, fmt.Errorf("net: input width must be positive, got %d", inputWidth)
	}
	if len(layers) == 0 {
		return nil, errors.New("net: at least one layer is required")
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("net: learning rate must be positive, got %v", cfg.LearningRate)
	}
	lossFn, err := loss.New(cfg.Loss)
	if err != nil {
		return nil, err
	}
	// Validate the solver kind eagerly; the bank itself is rebuilt by
	// InitializeParameters.
	if _, err := opt.New(cfg.Solver, opt.Config{LearningRate: cfg.LearningRate}); err != nil {
		return nil, err
	}

	var engine grad.Engine
	if cfg.Numerical {
		engine = grad.NewNumerical(lossFn)
	} else {
		engine = grad.Analytic{}
	}

	return &Network{
		cfg:        cfg,
		inputWidth: inputWidth,
		layers:     layers,
		lossFn:     lossFn,
		engine:     engine,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// NewFeedForward builds a plain fully connected topology: numLayers-1
// fused dense+activation layers of hiddenWidth neurons followed by a
// softmax output over outputWidth classes.
func NewFeedForward(cfg Config, inputWidth, hiddenWidth, numLayers, outputWidth int, activation activations.Kind) (*Network, error) {
	cfg = cfg.withDefaults()
	if numLayers < 1 {
		return nil, fmt.Errorf("net: need at least one layer, got %d", numLayers)
	}
	if hiddenWidth <= 0 && numLayers > 1 {
		return nil, fmt.Errorf("net: hidden width must be positive, got %d", hiddenWidth)
	}
	if outputWidth <= 0 {
		return nil, fmt.Errorf("net: output width must be positive, got %d", outputWidth)
	}
	act, err := activations.New(activation)
	if err != nil {
		return nil, err
	}

	src := rand.NewSource(cfg.Seed)
	layers := make([]layer.Layer, 0, numLayers)
	for i := 0; i < numLayers-1; i++ {
		layers = append(layers, layer.NewDense(hiddenWidth, act, cfg.WeightInitStd, src))
	}
	layers = append(layers, layer.NewSoftmaxOutput(outputWidth, cfg.WeightInitStd, src))

	return New(cfg, inputWidth, layers...)
}

// InitializeParameters (re)allocates every layer's parameters and
// gradient buffers and rebuilds the optimizer bank. Widths are
// inferred across adjacent layers; a mismatch between a layer's
// declared shape and its predecessor's output fails here, not at the
// first forward pass. The call is idempotent and safe before each
// independent training run.
func (n *Network) InitializeParameters() error {
	width := n.inputWidth
	for i, l := range n.layers {
		out, err := l.Initialize(width)
		if err != nil {
			return fmt.Errorf("net: layer %d: %w", i, err)
		}
		width = out
	}

	optCfg := opt.Config{
		LearningRate: n.cfg.LearningRate,
		Momentum:     n.cfg.Momentum,
		Beta1:        n.cfg.Beta1,
		Beta2:        n.cfg.Beta2,
		Epsilon:      n.cfg.Epsilon,
	}
	n.optims = make([]opt.Optimizer, len(n.layers))
	for i, l := range n.layers {
		if l.Params() == nil {
			continue
		}
		o, err := opt.New(n.cfg.Solver, optCfg)
		if err != nil {
			return err
		}
		n.optims[i] = o
	}

	n.initialized = true
	return nil
}

// forward runs an inference-mode pass; no caches are retained.
func (n *Network) forward(x *mat.Dense) *mat.Dense {
	curr := x
	for _, l := range n.layers {
		curr = l.Forward(curr)
	}
	return curr
}

// PredictProba returns the class probability distribution for each
// input row. Forward pass only, no side effects.
func (n *Network) PredictProba(x *mat.Dense) (*mat.Dense, error) {
	if !n.initialized {
		return nil, errors.New("net: network not initialized; call InitializeParameters first")
	}
	return n.forward(x), nil
}

// Loss evaluates the configured loss against one-hot targets.
func (n *Network) Loss(x, target *mat.Dense) (float64, error) {
	pred, err := n.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return n.lossFn.Forward(pred, target), nil
}

// Gradients computes one GradSet per layer (nil for parameterless
// layers) using the configured engine. Parameter values are unchanged.
func (n *Network) Gradients(x, target *mat.Dense) ([]*layer.GradSet, error) {
	if !n.initialized {
		return nil, errors.New("net: network not initialized; call InitializeParameters first")
	}
	return n.engine.Gradients(n.layers, x, target)
}

// ApplyUpdate feeds each layer's gradient to its optimizer, mutating
// parameters and optimizer state in place. Gradients must come from
// the current parameter values; stale gradients silently produce
// incorrect updates.
func (n *Network) ApplyUpdate(grads []*layer.GradSet) error {
	if !n.initialized {
		return errors.New("net: network not initialized; call InitializeParameters first")
	}
	if len(grads) != len(n.layers) {
		return fmt.Errorf("net: got %d gradient sets for %d layers", len(grads), len(n.layers))
	}
	for i, l := range n.layers {
		p := l.Params()
		if p == nil {
			continue
		}
		if grads[i] == nil {
			return fmt.Errorf("net: missing gradient set for layer %d", i)
		}
		n.optims[i].Update(p, grads[i])
	}
	return nil
}

// Fit trains the network: initialize parameters, fit the one-hot
// encoder on the labels, then repeat minibatch sampling, gradient
// computation, parameter update and loss recording for the configured
// number of iterations.
func (n *Network) Fit(x *mat.Dense, labels []float64, callbacks ...Callback) error {
	rows, cols := x.Dims()
	if cols != n.inputWidth {
		return fmt.Errorf("net: input has width %d, network expects %d", cols, n.inputWidth)
	}
	if rows != len(labels) {
		return fmt.Errorf("net: %d input rows but %d labels", rows, len(labels))
	}
	if err := n.InitializeParameters(); err != nil {
		return err
	}

	n.encoder = encoding.Fit(labels)
	if got, want := n.encoder.NumCategories(), n.layers[len(n.layers)-1].OutputWidth(); got != want {
		return fmt.Errorf("net: %d distinct labels but the output layer has width %d", got, want)
	}
	target, err := n.encoder.Encode(labels)
	if err != nil {
		return err
	}

	n.lossHistory = n.lossHistory[:0]
	for _, cb := range callbacks {
		cb.OnTrainBegin(n)
	}
	for iter := 0; iter < n.cfg.Iterations; iter++ {
		xb, tb := n.sampleMinibatch(x, target)
		grads, err := n.Gradients(xb, tb)
		if err != nil {
			return err
		}
		if err := n.ApplyUpdate(grads); err != nil {
			return err
		}
		l, err := n.Loss(xb, tb)
		if err != nil {
			return err
		}
		n.lossHistory = append(n.lossHistory, l)
		for _, cb := range callbacks {
			cb.OnIterationEnd(iter, l, n)
		}
	}
	for _, cb := range callbacks {
		cb.OnTrainEnd(n)
	}
	return nil
}

// sampleMinibatch draws batchSize rows uniformly with replacement.
func (n *Network) sampleMinibatch(x, target *mat.Dense) (*mat.Dense, *mat.Dense) {
	rows, _ := x.Dims()
	batch := n.cfg.BatchSize
	if batch > rows {
		batch = rows
	}
	_, xc := x.Dims()
	_, tc := target.Dims()
	xb := mat.NewDense(batch, xc, nil)
	tb := mat.NewDense(batch, tc, nil)
	for i := 0; i < batch; i++ {
		j := n.rng.Intn(rows)
		xb.SetRow(i, x.RawRowView(j))
		tb.SetRow(i, target.RawRowView(j))
	}
	return xb, tb
}

// Predict returns the most probable category per input row, decoded
// through the encoder fitted by Fit.
func (n *Network) Predict(x *mat.Dense) ([]float64, error) {
	if n.encoder == nil {
		return nil, errors.New("net: no fitted encoder; call Fit first")
	}
	probs, err := n.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return n.encoder.Decode(probs), nil
}

// Accuracy is the fraction of rows whose predicted category equals the
// true label.
func (n *Network) Accuracy(x *mat.Dense, labels []float64) (float64, error) {
	pred, err := n.Predict(x)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(labels) {
		return 0, fmt.Errorf("net: %d predictions but %d labels", len(pred), len(labels))
	}
	var hits int
	for i := range pred {
		if pred[i] == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(labels)), nil
}

// AccuracyOneHot compares arg-max indices of predictions and one-hot
// targets directly, without a fitted encoder.
func (n *Network) AccuracyOneHot(x, target *mat.Dense) (float64, error) {
	probs, err := n.PredictProba(x)
	if err != nil {
		return 0, err
	}
	rows, _ := probs.Dims()
	tr, _ := target.Dims()
	if rows != tr {
		return 0, fmt.Errorf("net: %d prediction rows but %d target rows", rows, tr)
	}
	var hits int
	for i := 0; i < rows; i++ {
		if floats.MaxIdx(probs.RawRowView(i)) == floats.MaxIdx(target.RawRowView(i)) {
			hits++
		}
	}
	return float64(hits) / float64(rows), nil
}

// TrainLossHistory returns the minibatch loss recorded at every
// training iteration of the last Fit call.
func (n *Network) TrainLossHistory() []float64 {
	return n.lossHistory
}

// Layers returns the network's layer stack.
func (n *Network) Layers() []layer.Layer {
	return n.layers
}

// Encoder returns the one-hot encoder fitted by Fit, or nil.
func (n *Network) Encoder() *encoding.OneHot {
	return n.encoder
}
