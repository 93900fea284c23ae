package main

import (
	"fmt"
	"log"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/loss"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/net"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/opt"
)

// Trains a deliberately tiny 2-3-2 classifier with the
// central-difference gradient engine. Every scalar parameter costs two
// full forward passes per iteration, so this engine only makes sense
// at toy scale or as a gradient-checking oracle.
func main() {
	fmt.Println("Training 2-3-2 classifier with finite differences...")

	trainX, trainLabels := makeMoons(200, 1)

	network, err := net.NewFeedForward(net.Config{
		Loss:         loss.KindCrossEntropy,
		Solver:       opt.KindSGD,
		LearningRate: 0.5,
		BatchSize:    20,
		Iterations:   300,
		Seed:         7,
		Numerical:    true,
	}, 2, 3, 2, 2, activations.KindSigmoid)
	if err != nil {
		log.Fatal(err)
	}

	if err := network.Fit(trainX, trainLabels, net.TrainLogger{Interval: 50}); err != nil {
		log.Fatal(err)
	}

	acc, err := network.Accuracy(trainX, trainLabels)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\nTrain accuracy: %.1f%%\n", acc*100)
}

// makeMoons draws n samples from two offset 2-dimensional clusters.
func makeMoons(n int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 2, nil)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		class := i % 2
		cx := float64(class)*2 - 1
		x.Set(i, 0, cx+rng.NormFloat64()*0.4)
		x.Set(i, 1, -cx+rng.NormFloat64()*0.4)
		labels[i] = float64(class)
	}
	return x, labels
}
