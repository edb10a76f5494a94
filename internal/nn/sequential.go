package nn

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Sequential runs its layers in order. Parameter names are prefixed with the
// layer index, e.g. "0.weight", "2.bias".
type Sequential struct {
	Layers []Layer
	params []*Parameter
}

// NewSequential builds the stack and names its parameters.
func NewSequential(layers ...Layer) *Sequential {
	s := &Sequential{Layers: layers}
	for i, l := range layers {
		for _, p := range l.Params() {
			p.Name = fmt.Sprintf("%d.%s", i, p.Name)
			s.params = append(s.params, p)
		}
	}
	return s
}

// Build reconstructs a stack from its layer specs. Weights are freshly
// initialised from seed and are expected to be overwritten by a checkpoint.
func Build(specs []LayerSpec, seed int64) (*Sequential, error) {
	rng := rand.New(rand.NewSource(seed))
	layers := make([]Layer, 0, len(specs))
	for i, s := range specs {
		switch s.Type {
		case "linear":
			if s.In <= 0 || s.Out <= 0 {
				return nil, errors.Errorf("layer %d: invalid linear size %dx%d", i, s.In, s.Out)
			}
			layers = append(layers, NewLinear(s.In, s.Out, rng))
		case "relu":
			layers = append(layers, &ReLU{})
		case "dropout":
			if s.P < 0 || s.P >= 1 {
				return nil, errors.Errorf("layer %d: dropout probability %g out of range", i, s.P)
			}
			layers = append(layers, NewDropout(s.P, rng))
		default:
			return nil, errors.Errorf("layer %d: unknown layer type %q", i, s.Type)
		}
	}
	return NewSequential(layers...), nil
}

// Forward feeds x through every layer.
func (s *Sequential) Forward(x *mat.Dense, mode Mode) (*mat.Dense, error) {
	out := x
	for i, l := range s.Layers {
		var err error
		if out, err = l.Forward(out, mode); err != nil {
			return nil, errors.Wrapf(err, "layer %d forward", i)
		}
	}
	return out, nil
}

// Backward propagates the gradient of the loss w.r.t. the output back through
// the stack, accumulating into each parameter's gradient.
func (s *Sequential) Backward(grad *mat.Dense) error {
	for i := len(s.Layers) - 1; i >= 0; i-- {
		var err error
		if grad, err = s.Layers[i].Backward(grad); err != nil {
			return errors.Wrapf(err, "layer %d backward", i)
		}
	}
	return nil
}

// Parameters returns the trainable parameters in layer order.
func (s *Sequential) Parameters() []*Parameter {
	return s.params
}

// Specs describes the structure of the stack.
func (s *Sequential) Specs() []LayerSpec {
	specs := make([]LayerSpec, len(s.Layers))
	for i, l := range s.Layers {
		specs[i] = l.Spec()
	}
	return specs
}

// NumParams is the total count of trainable scalars.
func (s *Sequential) NumParams() int {
	n := 0
	for _, p := range s.params {
		n += p.Size()
	}
	return n
}

// Summary lists the layers with their parameter counts.
func (s *Sequential) Summary() string {
	lines := []string{"== Network =="}
	for i, l := range s.Layers {
		n := 0
		for _, p := range l.Params() {
			n += p.Size()
		}
		lines = append(lines, fmt.Sprintf("%2d: %-28s params=%d", i, l.Spec(), n))
	}
	lines = append(lines, fmt.Sprintf("total params=%d", s.NumParams()))
	return strings.Join(lines, "\n")
}

func (s *Sequential) String() string {
	return s.Summary()
}
