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

// Trains a 4-5-3 classifier with backpropagation on synthetic
// linearly separable 3-class data.
func main() {
	fmt.Println("Training 4-5-3 classifier with backpropagation...")

	trainX, trainLabels := makeBlobs(300, 1)
	testX, testLabels := makeBlobs(90, 2)

	network, err := net.NewFeedForward(net.Config{
		Loss:         loss.KindCrossEntropy,
		Solver:       opt.KindSGD,
		LearningRate: 0.1,
		BatchSize:    10,
		Iterations:   1000,
		Seed:         42,
	}, 4, 5, 2, 3, activations.KindReLU)
	if err != nil {
		log.Fatal(err)
	}

	if err := network.Fit(trainX, trainLabels, net.TrainLogger{Interval: 100}); err != nil {
		log.Fatal(err)
	}

	trainAcc, err := network.Accuracy(trainX, trainLabels)
	if err != nil {
		log.Fatal(err)
	}
	testAcc, err := network.Accuracy(testX, testLabels)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\nTrain accuracy: %.1f%%\n", trainAcc*100)
	fmt.Printf("Test accuracy:  %.1f%%\n", testAcc*100)
}

// makeBlobs draws n samples around three well-separated 4-dimensional
// class centers.
func makeBlobs(n int, seed int64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	centers := [][]float64{
		{2, 0, 0, 1},
		{0, 2, 1, 0},
		{0, 0, 2, 2},
	}
	x := mat.NewDense(n, 4, nil)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		class := i % 3
		row := x.RawRowView(i)
		for j := range row {
			row[j] = centers[class][j] + rng.NormFloat64()*0.3
		}
		labels[i] = float64(class)
	}
	return x, labels
}
