// Package metrics accumulates evaluation and throughput statistics.
package metrics

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNoBatches is returned when a result is requested before any batch was recorded.
var ErrNoBatches = errors.New("metrics: no batches recorded")

// Running accumulates loss, correct predictions and sample counts over a pass.
type Running struct {
	lossSum float64
	correct int
	samples int
	batches int
}

// Record adds one batch: its mean loss, correct predictions and size.
func (r *Running) Record(loss float64, correct, n int) {
	r.lossSum += loss
	r.correct += correct
	r.samples += n
	r.batches++
}

// Reset clears the accumulators.
func (r *Running) Reset() {
	*r = Running{}
}

// Samples is the number of samples recorded so far.
func (r *Running) Samples() int {
	return r.samples
}

// Result computes the mean batch loss and the accuracy.
func (r *Running) Result() (Result, error) {
	if r.batches == 0 || r.samples == 0 {
		return Result{}, ErrNoBatches
	}
	return Result{
		MeanLoss: r.lossSum / float64(r.batches),
		Accuracy: float64(r.correct) / float64(r.samples),
		Correct:  r.correct,
		Samples:  r.samples,
		Batches:  r.batches,
	}, nil
}

// Result is the summary of an evaluation pass.
type Result struct {
	MeanLoss float64
	// Accuracy is a fraction in [0, 1].
	Accuracy float64
	Correct  int
	Samples  int
	Batches  int
}

// CountCorrect counts rows whose arg-max logit equals the label.
func CountCorrect(logits *mat.Dense, labels []int) int {
	n, _ := logits.Dims()
	correct := 0
	for i := 0; i < n && i < len(labels); i++ {
		if floats.MaxIdx(logits.RawRowView(i)) == labels[i] {
			correct++
		}
	}
	return correct
}
