package trainer

import (
	"fmt"
	"io"

	"epochforge/internal/metrics"
)

// Progress is emitted every ReportInterval training batches.
type Progress struct {
	Epoch int
	// Batch is the zero-based batch index within the epoch.
	Batch int
	Loss  float64
	// Current is the number of samples processed so far in the epoch.
	Current int
	Size    int
}

// Reporter observes a run.
type Reporter interface {
	EpochStarted(epoch int)
	Progress(p Progress)
	Evaluated(epoch int, res metrics.Result)
	Finished()
}

// TextReporter prints the classic quickstart console output.
type TextReporter struct {
	w io.Writer
}

// NewTextReporter writes to w.
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (r *TextReporter) EpochStarted(epoch int) {
	fmt.Fprintf(r.w, "Epoch %d\n-------------------------------\n", epoch)
}

func (r *TextReporter) Progress(p Progress) {
	fmt.Fprintf(r.w, "loss: %7f  [%5d/%5d]\n", p.Loss, p.Current, p.Size)
}

func (r *TextReporter) Evaluated(epoch int, res metrics.Result) {
	fmt.Fprintf(r.w, "Test Error: \n Accuracy: %0.1f%%, Avg loss: %8f \n\n", 100*res.Accuracy, res.MeanLoss)
}

func (r *TextReporter) Finished() {
	fmt.Fprintln(r.w, "Done!")
}

type nopReporter struct{}

func (nopReporter) EpochStarted(int) {}
func (nopReporter) Progress(Progress) {}
func (nopReporter) Evaluated(int, metrics.Result) {}
func (nopReporter) Finished() {}

// MultiReporter fans every event out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) EpochStarted(epoch int) {
	for _, r := range m {
		r.EpochStarted(epoch)
	}
}

func (m MultiReporter) Progress(p Progress) {
	for _, r := range m {
		r.Progress(p)
	}
}

func (m MultiReporter) Evaluated(epoch int, res metrics.Result) {
	for _, r := range m {
		r.Evaluated(epoch, res)
	}
}

func (m MultiReporter) Finished() {
	for _, r := range m {
		r.Finished()
	}
}
