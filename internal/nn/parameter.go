// Package nn holds the dense layers, losses and parameter bookkeeping used by the trainer.
package nn

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Mode selects train or eval behaviour for a forward pass.
type Mode int

const (
	// ModeTrain records the state needed by Backward and enables dropout.
	ModeTrain Mode = iota
	// ModeEval records nothing and uses inference behaviour.
	ModeEval
)

func (m Mode) String() string {
	if m == ModeEval {
		return "eval"
	}
	return "train"
}

var (
	// ErrShape is returned when operand dimensions do not line up.
	ErrShape = errors.New("nn: shape mismatch")
	// ErrNoGraph is returned by Backward when no training forward pass preceded it.
	ErrNoGraph = errors.New("nn: backward without a training forward pass")
)

// Parameter is a named trainable tensor and its accumulated gradient.
type Parameter struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParameter wraps value and allocates a zero gradient of the same shape.
func NewParameter(name string, value *mat.Dense) *Parameter {
	r, c := value.Dims()
	return &Parameter{Name: name, Value: value, Grad: mat.NewDense(r, c, nil)}
}

// Accumulate adds g into the gradient. Gradients add up until ZeroGrad is called.
func (p *Parameter) Accumulate(g mat.Matrix) error {
	pr, pc := p.Grad.Dims()
	gr, gc := g.Dims()
	if pr != gr || pc != gc {
		return errors.Wrapf(ErrShape, "%s: gradient %dx%d, parameter %dx%d", p.Name, gr, gc, pr, pc)
	}
	p.Grad.Add(p.Grad, g)
	return nil
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// Size is the number of scalar values held by the parameter.
func (p *Parameter) Size() int {
	r, c := p.Value.Dims()
	return r * c
}

func (p *Parameter) String() string {
	r, c := p.Value.Dims()
	return fmt.Sprintf("%s [%d %d]", p.Name, r, c)
}
