package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"epochforge/internal/nn"
)

// ClassifierConfig describes a feed-forward classifier.
type ClassifierConfig struct {
	Inputs  int
	Hidden  []int
	Classes int
	Dropout float64
}

// NewClassifier builds Linear/ReLU blocks for each hidden width, optionally
// followed by dropout, and a final Linear layer producing one logit per class.
func NewClassifier(cfg ClassifierConfig, seed int64) (*nn.Sequential, error) {
	if cfg.Inputs <= 0 {
		return nil, errors.Errorf("classifier: inputs must be > 0 (got %d)", cfg.Inputs)
	}
	if cfg.Classes < 2 {
		return nil, errors.Errorf("classifier: need at least 2 classes (got %d)", cfg.Classes)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, errors.Errorf("classifier: dropout must be in [0, 1) (got %g)", cfg.Dropout)
	}
	rng := rand.New(rand.NewSource(seed))
	var layers []nn.Layer
	in := cfg.Inputs
	for _, h := range cfg.Hidden {
		if h <= 0 {
			return nil, errors.Errorf("classifier: hidden width must be > 0 (got %d)", h)
		}
		layers = append(layers, nn.NewLinear(in, h, rng), &nn.ReLU{})
		if cfg.Dropout > 0 {
			layers = append(layers, nn.NewDropout(cfg.Dropout, rng))
		}
		in = h
	}
	layers = append(layers, nn.NewLinear(in, cfg.Classes, rng))
	return nn.NewSequential(layers...), nil
}

// Predict returns the arg-max class for every row of x.
func Predict(m Model, x *mat.Dense) ([]int, error) {
	logits, err := m.Forward(x, nn.ModeEval)
	if err != nil {
		return nil, err
	}
	n, _ := logits.Dims()
	out := make([]int, n)
	for i := range out {
		out[i] = floats.MaxIdx(logits.RawRowView(i))
	}
	return out, nil
}
