package net

import "fmt"

// Callback observes training progress during Fit.
type Callback interface {
	OnTrainBegin(n *Network)
	OnIterationEnd(iter int, loss float64, n *Network)
	OnTrainEnd(n *Network)
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(n *Network)                           {}
func (BaseCallback) OnIterationEnd(iter int, loss float64, n *Network) {}
func (BaseCallback) OnTrainEnd(n *Network)                             {}

// TrainLogger prints the minibatch loss every Interval iterations.
type TrainLogger struct {
	BaseCallback
	Interval int
}

func (c TrainLogger) OnIterationEnd(iter int, loss float64, n *Network) {
	if c.Interval > 0 && iter%c.Interval == 0 {
		fmt.Printf("iter %d: loss = %.6f\n", iter, loss)
	}
}
