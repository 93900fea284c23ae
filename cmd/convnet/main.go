package main

import (
	"fmt"
	"log"
	stdrand "math/rand"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/c60evaporator/fully-understand-deeplearning/internal/activations"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/layer"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/loss"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/net"
	"github.com/c60evaporator/fully-understand-deeplearning/internal/opt"
)

// Trains the layer-composable variant on synthetic 8x8 single-channel
// images: Conv2D -> MaxPool2D -> Dense -> softmax output, updated with
// Adam.
func main() {
	fmt.Println("Training conv-pool-dense classifier with Adam...")

	trainX, trainLabels := makeImages(300, 1)
	testX, testLabels := makeImages(90, 2)

	src := rand.NewSource(42)
	std := 0.1
	layers := []layer.Layer{
		layer.NewConv2D(1, 8, 8, 4, 3, 1, 0, activations.ReLU{}, std, src),
		layer.NewMaxPool2D(4, 6, 6, 2, 2),
		layer.NewDense(16, activations.ReLU{}, std, src),
		layer.NewSoftmaxOutput(3, std, src),
	}

	network, err := net.New(net.Config{
		Loss:         loss.KindCrossEntropy,
		Solver:       opt.KindAdam,
		LearningRate: 0.005,
		BatchSize:    20,
		Iterations:   500,
		Seed:         42,
	}, 64, layers...)
	if err != nil {
		log.Fatal(err)
	}

	if err := network.Fit(trainX, trainLabels, net.TrainLogger{Interval: 50}); err != nil {
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

// makeImages draws n noisy 8x8 images whose class is a bright 4x4
// patch in the top-left, the center, or the bottom-right.
func makeImages(n int, seed int64) (*mat.Dense, []float64) {
	rng := stdrand.New(stdrand.NewSource(seed))
	offsets := [][2]int{{0, 0}, {2, 2}, {4, 4}}
	x := mat.NewDense(n, 64, nil)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		class := i % 3
		row := x.RawRowView(i)
		for j := range row {
			row[j] = rng.Float64() * 0.2
		}
		oy, ox := offsets[class][0], offsets[class][1]
		for dy := 0; dy < 4; dy++ {
			for dx := 0; dx < 4; dx++ {
				row[(oy+dy)*8+ox+dx] += 0.8
			}
		}
		labels[i] = float64(class)
	}
	return x, labels
}
