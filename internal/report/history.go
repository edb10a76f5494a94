// Package report records run history and renders training curves.
package report

import (
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"epochforge/internal/metrics"
	"epochforge/internal/trainer"
)

// ErrNoData is returned when plotting before any epoch was evaluated.
var ErrNoData = errors.New("report: no evaluated epochs")

// EpochPoint is the evaluation summary of one epoch.
type EpochPoint struct {
	Epoch    int
	Accuracy float64
	MeanLoss float64
}

// ProgressPoint is a reported training loss; At is measured in epochs.
type ProgressPoint struct {
	At   float64
	Loss float64
}

// History implements trainer.Reporter and keeps every event in memory.
type History struct {
	Epochs []EpochPoint
	Losses []ProgressPoint
	done   bool
	epoch  int
}

var _ trainer.Reporter = (*History)(nil)

func (h *History) EpochStarted(epoch int) {
	h.epoch = epoch
}

func (h *History) Progress(p trainer.Progress) {
	at := float64(h.epoch - 1)
	if p.Size > 0 {
		at += float64(p.Current) / float64(p.Size)
	}
	h.Losses = append(h.Losses, ProgressPoint{At: at, Loss: p.Loss})
}

func (h *History) Evaluated(epoch int, res metrics.Result) {
	h.Epochs = append(h.Epochs, EpochPoint{Epoch: epoch, Accuracy: res.Accuracy, MeanLoss: res.MeanLoss})
}

func (h *History) Finished() {
	h.done = true
}

// Done reports whether the run completed every epoch.
func (h *History) Done() bool {
	return h.done
}

// Best returns the epoch with the highest accuracy.
func (h *History) Best() (EpochPoint, bool) {
	if len(h.Epochs) == 0 {
		return EpochPoint{}, false
	}
	best := h.Epochs[0]
	for _, e := range h.Epochs[1:] {
		if e.Accuracy > best.Accuracy {
			best = e
		}
	}
	return best, true
}

// Plot builds loss and accuracy curves against epochs.
func (h *History) Plot() (*plot.Plot, error) {
	if len(h.Epochs) == 0 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = "Training"
	p.X.Label.Text = "epoch"
	p.X.Min = 0
	p.Y.Min = 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	var train, loss, acc plotter.XYs
	for _, pt := range h.Losses {
		train = append(train, plotter.XY{X: pt.At, Y: pt.Loss})
	}
	for _, e := range h.Epochs {
		loss = append(loss, plotter.XY{X: float64(e.Epoch), Y: e.MeanLoss})
		acc = append(acc, plotter.XY{X: float64(e.Epoch), Y: e.Accuracy})
	}
	series := []struct {
		name string
		pts  plotter.XYs
	}{
		{"train loss", train},
		{"test loss", loss},
		{"test accuracy", acc},
	}
	for i, s := range series {
		if len(s.pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, errors.Wrapf(err, "report: %s line", s.name)
		}
		l.Width = vg.Points(1.5)
		l.Color = plotutil.Color(i)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}
	return p, nil
}

// WritePlot renders the curves in format ("svg", "png", "pdf", ...) to w.
func (h *History) WritePlot(w io.Writer, format string, width, height vg.Length) error {
	p, err := h.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return errors.Wrap(err, "report: plot writer")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "report: write plot")
	}
	return nil
}

// SavePlot writes the curves to path; the extension selects the format.
func (h *History) SavePlot(path string) error {
	p, err := h.Plot()
	if err != nil {
		return err
	}
	return errors.Wrap(p.Save(6*vg.Inch, 4*vg.Inch, path), "report: save plot")
}
