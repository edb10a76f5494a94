package metrics

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func TestThroughputSnapshot(t *testing.T) {
	var w Throughput
	w.Record(64, 30*time.Millisecond, 1.2)
	w.Record(64, 30*time.Millisecond, 0.8)
	snap := w.Snapshot()
	if math.Abs(snap.SamplesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.SamplesPerSec)
	}
	if math.Abs(snap.MeanLoss-1.0) > 1e-12 {
		t.Fatalf("expected mean loss 1.0, got %.4f", snap.MeanLoss)
	}
	if w.samples != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.LastLoss != 0.8 {
		t.Fatalf("expected last loss 0.8, got %.2f", snap.LastLoss)
	}
}

func TestRunningResult(t *testing.T) {
	var r Running
	if _, err := r.Result(); err != ErrNoBatches {
		t.Fatalf("expected ErrNoBatches, got %v", err)
	}
	r.Record(0.5, 28, 30)
	r.Record(1.5, 5, 10)
	res, err := r.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.MeanLoss != 1.0 {
		t.Fatalf("expected mean loss 1.0, got %g", res.MeanLoss)
	}
	if math.Abs(res.Accuracy-33.0/40) > 1e-12 {
		t.Fatalf("unexpected accuracy %g", res.Accuracy)
	}
	if res.Samples != 40 || res.Batches != 2 {
		t.Fatalf("unexpected counts %+v", res)
	}
	r.Reset()
	if r.Samples() != 0 {
		t.Fatalf("reset left %d samples", r.Samples())
	}
}

func TestCountCorrect(t *testing.T) {
	logits := mat.NewDense(3, 3, []float64{
		0.1, 0.7, 0.2,
		2, -1, 0,
		0, 0, 5,
	})
	if got := CountCorrect(logits, []int{1, 1, 2}); got != 2 {
		t.Fatalf("expected 2 correct, got %d", got)
	}
}
