// Package optim turns accumulated gradients into parameter updates.
package optim

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"epochforge/internal/nn"
)

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	params   []*nn.Parameter
	lr       float64
	momentum float64
	velocity [][]float64
	steps    int
}

// NewSGD holds a reference to params; it updates them in place.
func NewSGD(params []*nn.Parameter, lr, momentum float64) (*SGD, error) {
	if lr <= 0 {
		return nil, errors.Errorf("sgd: learning rate must be > 0 (got %g)", lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, errors.Errorf("sgd: momentum must be in [0, 1) (got %g)", momentum)
	}
	return &SGD{params: params, lr: lr, momentum: momentum}, nil
}

// Step applies one update using the current gradients.
func (o *SGD) Step() error {
	if o.momentum > 0 && o.velocity == nil {
		o.velocity = make([][]float64, len(o.params))
		for i, p := range o.params {
			o.velocity[i] = make([]float64, p.Size())
		}
	}
	for i, p := range o.params {
		value := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		if len(value) != len(grad) {
			return errors.Wrapf(nn.ErrShape, "sgd: %s", p.Name)
		}
		if o.momentum == 0 {
			floats.AddScaled(value, -o.lr, grad)
			continue
		}
		v := o.velocity[i]
		floats.Scale(o.momentum, v)
		floats.Add(v, grad)
		floats.AddScaled(value, -o.lr, v)
	}
	o.steps++
	return nil
}

// ZeroGrad clears every parameter's accumulated gradient.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

// Steps is the number of updates applied so far.
func (o *SGD) Steps() int {
	return o.steps
}

// LearningRate returns the step size.
func (o *SGD) LearningRate() float64 {
	return o.lr
}
