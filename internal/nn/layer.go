package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Layer is one stage of a feed-forward stack.
type Layer interface {
	// Forward maps a batch (one sample per row) to the layer output.
	Forward(x *mat.Dense, mode Mode) (*mat.Dense, error)
	// Backward takes the loss gradient w.r.t. the layer output, accumulates parameter
	// gradients and returns the gradient w.r.t. the layer input.
	Backward(grad *mat.Dense) (*mat.Dense, error)
	Params() []*Parameter
	Spec() LayerSpec
}

// LayerSpec is the structural description of a layer, enough to rebuild it.
type LayerSpec struct {
	Type string
	In   int
	Out  int
	P    float64
}

func (s LayerSpec) String() string {
	switch s.Type {
	case "linear":
		return fmt.Sprintf("Linear(in=%d, out=%d)", s.In, s.Out)
	case "dropout":
		return fmt.Sprintf("Dropout(p=%g)", s.P)
	case "relu":
		return "ReLU()"
	default:
		return s.Type
	}
}

// Linear is a fully connected layer computing x·W + b.
type Linear struct {
	In, Out int
	Weight  *Parameter
	Bias    *Parameter
	input   *mat.Dense
}

// NewLinear creates a layer with weights and bias drawn from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (rng.Float64()*2 - 1) * bound
	}
	return &Linear{
		In:     in,
		Out:    out,
		Weight: NewParameter("weight", mat.NewDense(in, out, w)),
		Bias:   NewParameter("bias", mat.NewDense(1, out, b)),
	}
}

func (l *Linear) Forward(x *mat.Dense, mode Mode) (*mat.Dense, error) {
	n, c := x.Dims()
	if c != l.In {
		return nil, errors.Wrapf(ErrShape, "linear: input width %d, want %d", c, l.In)
	}
	out := mat.NewDense(n, l.Out, nil)
	out.Mul(x, l.Weight.Value)
	bias := l.Bias.Value.RawRowView(0)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	if mode == ModeTrain {
		l.input = x
	} else {
		l.input = nil
	}
	return out, nil
}

func (l *Linear) Backward(grad *mat.Dense) (*mat.Dense, error) {
	if l.input == nil {
		return nil, errors.Wrap(ErrNoGraph, "linear")
	}
	n, c := grad.Dims()
	if in, _ := l.input.Dims(); n != in || c != l.Out {
		return nil, errors.Wrapf(ErrShape, "linear: gradient %dx%d, want %dx%d", n, c, in, l.Out)
	}
	var dw mat.Dense
	dw.Mul(l.input.T(), grad)
	if err := l.Weight.Accumulate(&dw); err != nil {
		return nil, err
	}
	db := mat.NewDense(1, l.Out, nil)
	dbRow := db.RawRowView(0)
	for i := 0; i < n; i++ {
		for j, v := range grad.RawRowView(i) {
			dbRow[j] += v
		}
	}
	if err := l.Bias.Accumulate(db); err != nil {
		return nil, err
	}
	dx := mat.NewDense(n, l.In, nil)
	dx.Mul(grad, l.Weight.Value.T())
	l.input = nil
	return dx, nil
}

func (l *Linear) Params() []*Parameter {
	return []*Parameter{l.Weight, l.Bias}
}

func (l *Linear) Spec() LayerSpec {
	return LayerSpec{Type: "linear", In: l.In, Out: l.Out}
}

// ReLU clamps negative activations to zero.
type ReLU struct {
	mask []bool
}

func (r *ReLU) Forward(x *mat.Dense, mode Mode) (*mat.Dense, error) {
	n, c := x.Dims()
	out := mat.NewDense(n, c, nil)
	var mask []bool
	if mode == ModeTrain {
		mask = make([]bool, n*c)
	}
	for i := 0; i < n; i++ {
		dst := out.RawRowView(i)
		for j, v := range x.RawRowView(i) {
			if v > 0 {
				dst[j] = v
				if mask != nil {
					mask[i*c+j] = true
				}
			}
		}
	}
	r.mask = mask
	return out, nil
}

func (r *ReLU) Backward(grad *mat.Dense) (*mat.Dense, error) {
	n, c := grad.Dims()
	if r.mask == nil {
		return nil, errors.Wrap(ErrNoGraph, "relu")
	}
	if len(r.mask) != n*c {
		return nil, errors.Wrapf(ErrShape, "relu: gradient %dx%d", n, c)
	}
	dx := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		dst := dx.RawRowView(i)
		for j, v := range grad.RawRowView(i) {
			if r.mask[i*c+j] {
				dst[j] = v
			}
		}
	}
	r.mask = nil
	return dx, nil
}

func (r *ReLU) Params() []*Parameter { return nil }

func (r *ReLU) Spec() LayerSpec { return LayerSpec{Type: "relu"} }

// Dropout zeroes activations with probability P while training and scales the
// survivors by 1/(1-P). In eval mode it is the identity.
type Dropout struct {
	P     float64
	rng   *rand.Rand
	scale []float64
}

// NewDropout creates a dropout layer drawing its masks from rng.
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

func (d *Dropout) Forward(x *mat.Dense, mode Mode) (*mat.Dense, error) {
	if mode == ModeEval {
		d.scale = nil
		return mat.DenseCopyOf(x), nil
	}
	n, c := x.Dims()
	keep := 1 / (1 - d.P)
	d.scale = make([]float64, n*c)
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		dst := out.RawRowView(i)
		for j, v := range x.RawRowView(i) {
			if d.P == 0 || d.rng.Float64() >= d.P {
				d.scale[i*c+j] = keep
				dst[j] = v * keep
			}
		}
	}
	return out, nil
}

func (d *Dropout) Backward(grad *mat.Dense) (*mat.Dense, error) {
	n, c := grad.Dims()
	if d.scale == nil {
		return nil, errors.Wrap(ErrNoGraph, "dropout")
	}
	if len(d.scale) != n*c {
		return nil, errors.Wrapf(ErrShape, "dropout: gradient %dx%d", n, c)
	}
	dx := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		dst := dx.RawRowView(i)
		for j, v := range grad.RawRowView(i) {
			dst[j] = v * d.scale[i*c+j]
		}
	}
	d.scale = nil
	return dx, nil
}

func (d *Dropout) Params() []*Parameter { return nil }

func (d *Dropout) Spec() LayerSpec { return LayerSpec{Type: "dropout", P: d.P} }
