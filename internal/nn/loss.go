package nn

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Loss maps logits and integer labels to a scalar.
type Loss interface {
	// Value computes the mean loss without a gradient.
	Value(logits *mat.Dense, labels []int) (float64, error)
	// ValueGrad also returns the gradient of the mean loss w.r.t. the logits.
	ValueGrad(logits *mat.Dense, labels []int) (float64, *mat.Dense, error)
}

// LossByName returns "cross_entropy" or "mse".
func LossByName(name string) (Loss, error) {
	switch name {
	case "cross_entropy", "":
		return CrossEntropy{}, nil
	case "mse":
		return MSE{}, nil
	default:
		return nil, errors.Errorf("unknown loss %q", name)
	}
}

// CrossEntropy is softmax followed by negative log likelihood, averaged over the batch.
type CrossEntropy struct{}

func (CrossEntropy) Value(logits *mat.Dense, labels []int) (float64, error) {
	loss, _, err := crossEntropy(logits, labels, false)
	return loss, err
}

func (CrossEntropy) ValueGrad(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	return crossEntropy(logits, labels, true)
}

func crossEntropy(logits *mat.Dense, labels []int, withGrad bool) (float64, *mat.Dense, error) {
	n, c, err := checkLabels(logits, labels)
	if err != nil {
		return 0, nil, err
	}
	var grad *mat.Dense
	if withGrad {
		grad = mat.NewDense(n, c, nil)
	}
	probs := make([]float64, c)
	total := 0.0
	for i := 0; i < n; i++ {
		softmax(logits.RawRowView(i), probs)
		total -= math.Log(math.Max(probs[labels[i]], 1e-12))
		if grad != nil {
			row := grad.RawRowView(i)
			for j, p := range probs {
				row[j] = p / float64(n)
			}
			row[labels[i]] -= 1 / float64(n)
		}
	}
	return total / float64(n), grad, nil
}

// MSE is the mean squared error between the logits and one-hot encoded labels.
type MSE struct{}

func (MSE) Value(logits *mat.Dense, labels []int) (float64, error) {
	loss, _, err := mse(logits, labels, false)
	return loss, err
}

func (MSE) ValueGrad(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	return mse(logits, labels, true)
}

func mse(logits *mat.Dense, labels []int, withGrad bool) (float64, *mat.Dense, error) {
	n, c, err := checkLabels(logits, labels)
	if err != nil {
		return 0, nil, err
	}
	var grad *mat.Dense
	if withGrad {
		grad = mat.NewDense(n, c, nil)
	}
	count := float64(n * c)
	total := 0.0
	for i := 0; i < n; i++ {
		for j, v := range logits.RawRowView(i) {
			diff := v
			if j == labels[i] {
				diff -= 1
			}
			total += diff * diff
			if grad != nil {
				grad.Set(i, j, 2*diff/count)
			}
		}
	}
	return total / count, grad, nil
}

func checkLabels(logits *mat.Dense, labels []int) (int, int, error) {
	n, c := logits.Dims()
	if n == 0 {
		return 0, 0, errors.Wrap(ErrShape, "loss: empty batch")
	}
	if n != len(labels) {
		return 0, 0, errors.Wrapf(ErrShape, "loss: %d rows of logits, %d labels", n, len(labels))
	}
	for i, y := range labels {
		if y < 0 || y >= c {
			return 0, 0, errors.Errorf("loss: label %d at row %d outside [0, %d)", y, i, c)
		}
	}
	return n, c, nil
}

func softmax(logits, out []float64) {
	hi := logits[0]
	for _, v := range logits {
		if v > hi {
			hi = v
		}
	}
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	inv := 1 / sum
	for i := range out {
		out[i] *= inv
	}
}
