package metrics

import "time"

// Throughput accumulates timing across training steps between log lines.
type Throughput struct {
	samples  int
	elapsed  time.Duration
	steps    int
	lossSum  float64
	lastLoss float64
}

// Record adds one step's measurement.
func (w *Throughput) Record(batchSize int, elapsed time.Duration, loss float64) {
	w.samples += batchSize
	w.elapsed += elapsed
	w.steps++
	w.lossSum += loss
	w.lastLoss = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Throughput) Snapshot() ThroughputSnapshot {
	snap := ThroughputSnapshot{Steps: w.steps, LastLoss: w.lastLoss}
	if w.elapsed > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.elapsed.Seconds()
	}
	if w.steps > 0 {
		snap.AvgStepMS = (w.elapsed.Seconds() * 1000) / float64(w.steps)
		snap.MeanLoss = w.lossSum / float64(w.steps)
	}

	*w = Throughput{}
	return snap
}

// ThroughputSnapshot represents loggable timing metrics.
type ThroughputSnapshot struct {
	Steps         int
	SamplesPerSec float64
	AvgStepMS     float64
	MeanLoss      float64
	LastLoss      float64
}
