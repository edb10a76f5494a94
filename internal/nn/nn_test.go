package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return mat.NewDense(r, c, data)
}

func TestLinearForwardShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	l := NewLinear(3, 5, rng)
	out, err := l.Forward(randDense(rng, 4, 3), ModeEval)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if r, c := out.Dims(); r != 4 || c != 5 {
		t.Fatalf("output dims %dx%d, want 4x5", r, c)
	}
	if _, err := l.Forward(randDense(rng, 4, 2), ModeEval); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestBackwardNeedsTrainingForward(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	net := NewSequential(NewLinear(3, 2, rng), &ReLU{})
	x := randDense(rng, 2, 3)
	if _, err := net.Forward(x, ModeEval); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := net.Backward(mat.NewDense(2, 2, nil)); !errors.Is(err, ErrNoGraph) {
		t.Fatalf("expected ErrNoGraph after eval forward, got %v", err)
	}
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net := NewSequential(NewLinear(3, 6, rng), &ReLU{}, NewLinear(6, 3, rng))
	x := randDense(rng, 5, 3)
	labels := []int{0, 2, 1, 1, 0}

	for _, loss := range []Loss{CrossEntropy{}, MSE{}} {
		for _, p := range net.Parameters() {
			p.ZeroGrad()
		}
		logits, err := net.Forward(x, ModeTrain)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		_, grad, err := loss.ValueGrad(logits, labels)
		if err != nil {
			t.Fatalf("loss: %v", err)
		}
		if err := net.Backward(grad); err != nil {
			t.Fatalf("backward: %v", err)
		}

		for _, p := range net.Parameters() {
			data := p.Value.RawMatrix().Data
			orig := append([]float64(nil), data...)
			f := func(v []float64) float64 {
				copy(data, v)
				out, err := net.Forward(x, ModeEval)
				if err != nil {
					t.Fatalf("forward: %v", err)
				}
				val, err := loss.Value(out, labels)
				if err != nil {
					t.Fatalf("loss: %v", err)
				}
				return val
			}
			numeric := fd.Gradient(nil, f, orig, &fd.Settings{Formula: fd.Central, Step: 1e-6})
			copy(data, orig)
			analytic := p.Grad.RawMatrix().Data
			for i := range numeric {
				if math.Abs(numeric[i]-analytic[i]) > 1e-6 {
					t.Fatalf("%T %s[%d]: analytic %g numeric %g", loss, p.Name, i, analytic[i], numeric[i])
				}
			}
		}
	}
}

func TestGradientsAccumulateUntilZeroed(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	net := NewSequential(NewLinear(2, 2, rng))
	x := randDense(rng, 3, 2)
	labels := []int{0, 1, 1}
	step := func() {
		logits, err := net.Forward(x, ModeTrain)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		_, grad, err := CrossEntropy{}.ValueGrad(logits, labels)
		if err != nil {
			t.Fatalf("loss: %v", err)
		}
		if err := net.Backward(grad); err != nil {
			t.Fatalf("backward: %v", err)
		}
	}
	step()
	once := mat.DenseCopyOf(net.Parameters()[0].Grad)
	step()
	twice := net.Parameters()[0].Grad
	var want mat.Dense
	want.Scale(2, once)
	if !mat.EqualApprox(twice, &want, 1e-12) {
		t.Fatalf("gradient did not accumulate")
	}
	for _, p := range net.Parameters() {
		p.ZeroGrad()
		if mat.Norm(p.Grad, 1) != 0 {
			t.Fatalf("%s not zeroed", p.Name)
		}
	}
}

func TestDropoutModes(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := NewDropout(0.5, rng)
	x := mat.NewDense(4, 50, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 50; j++ {
			x.Set(i, j, 1)
		}
	}
	eval, err := d.Forward(x, ModeEval)
	if err != nil {
		t.Fatalf("eval forward: %v", err)
	}
	if !mat.Equal(eval, x) {
		t.Fatalf("dropout changed values in eval mode")
	}
	train, err := d.Forward(x, ModeTrain)
	if err != nil {
		t.Fatalf("train forward: %v", err)
	}
	zeros := 0
	for i := 0; i < 4; i++ {
		for _, v := range train.RawRowView(i) {
			switch v {
			case 0:
				zeros++
			case 2:
			default:
				t.Fatalf("unexpected value %g, want 0 or 2", v)
			}
		}
	}
	if zeros == 0 || zeros == 200 {
		t.Fatalf("implausible dropout count %d of 200", zeros)
	}
}

func TestParameterNamesAndBuild(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	net := NewSequential(NewLinear(4, 8, rng), &ReLU{}, NewDropout(0.2, rng), NewLinear(8, 3, rng))
	want := []string{"0.weight", "0.bias", "3.weight", "3.bias"}
	params := net.Parameters()
	if len(params) != len(want) {
		t.Fatalf("expected %d parameters, got %d", len(want), len(params))
	}
	for i, name := range want {
		if params[i].Name != name {
			t.Fatalf("param[%d]=%s want %s", i, params[i].Name, name)
		}
	}
	if got := net.NumParams(); got != 4*8+8+8*3+3 {
		t.Fatalf("unexpected param count %d", got)
	}

	rebuilt, err := Build(net.Specs(), 99)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rebuilt.Summary() != net.Summary() {
		t.Fatalf("summary mismatch:\n%s\n%s", rebuilt.Summary(), net.Summary())
	}
	if _, err := Build([]LayerSpec{{Type: "conv"}}, 1); err == nil {
		t.Fatalf("expected error for unknown layer type")
	}
}

func TestLossRejectsBadLabels(t *testing.T) {
	logits := mat.NewDense(2, 3, nil)
	if _, err := (CrossEntropy{}).Value(logits, []int{0}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	if _, err := (CrossEntropy{}).Value(logits, []int{0, 3}); err == nil {
		t.Fatalf("expected out of range label error")
	}
	val, err := (CrossEntropy{}).Value(logits, []int{0, 2})
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if math.Abs(val-math.Log(3)) > 1e-12 {
		t.Fatalf("uniform logits loss %g, want ln 3", val)
	}
}
