package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/plot/vg"

	"epochforge/internal/metrics"
	"epochforge/internal/trainer"
)

func feed(h *History) {
	for epoch := 1; epoch <= 3; epoch++ {
		h.EpochStarted(epoch)
		h.Progress(trainer.Progress{Epoch: epoch, Batch: 0, Loss: 1 / float64(epoch), Current: 10, Size: 40})
		h.Progress(trainer.Progress{Epoch: epoch, Batch: 2, Loss: 0.5 / float64(epoch), Current: 30, Size: 40})
		h.Evaluated(epoch, metrics.Result{MeanLoss: 0.9 / float64(epoch), Accuracy: 0.5 + 0.1*float64(epoch)})
	}
	h.Finished()
}

func TestHistoryRecords(t *testing.T) {
	var h History
	feed(&h)
	if len(h.Epochs) != 3 || len(h.Losses) != 6 || !h.Done() {
		t.Fatalf("unexpected history: %d epochs, %d losses, done=%v", len(h.Epochs), len(h.Losses), h.Done())
	}
	if got := h.Losses[3].At; got != 1.75 {
		t.Fatalf("expected progress at 1.75 epochs, got %v", got)
	}
	best, ok := h.Best()
	if !ok || best.Epoch != 3 {
		t.Fatalf("expected best epoch 3, got %+v", best)
	}
}

func TestWritePlotSVG(t *testing.T) {
	var h History
	feed(&h)
	var buf bytes.Buffer
	if err := h.WritePlot(&buf, "svg", 4*vg.Inch, 3*vg.Inch); err != nil {
		t.Fatalf("WritePlot: %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Fatalf("output is not svg")
	}
}

func TestSavePlot(t *testing.T) {
	var h History
	feed(&h)
	path := filepath.Join(t.TempDir(), "curves.png")
	if err := h.SavePlot(path); err != nil {
		t.Fatalf("SavePlot: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("plot not written: %v", err)
	}
}

func TestPlotWithoutData(t *testing.T) {
	var h History
	if err := h.WritePlot(&bytes.Buffer{}, "svg", vg.Inch, vg.Inch); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
