package model

import (
	"gonum.org/v1/gonum/mat"

	"epochforge/internal/nn"
)

// Batch represents a minibatch of features (one sample per row) and labels.
type Batch struct {
	Features *mat.Dense
	Labels   []int
}

// Len is the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}

// Model is the minimal surface the trainer drives.
type Model interface {
	Forward(x *mat.Dense, mode nn.Mode) (*mat.Dense, error)
	Backward(grad *mat.Dense) error
	Parameters() []*nn.Parameter
}
