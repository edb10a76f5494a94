// Package trainer drives the per-epoch training and evaluation passes.
package trainer

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"epochforge/internal/metrics"
	"epochforge/internal/model"
	"epochforge/internal/nn"
)

var (
	// ErrEmptyDataset is returned when an evaluation loader yields no batches.
	ErrEmptyDataset = errors.New("trainer: dataset has no batches")
	// ErrNonFinite is returned when a batch loss is NaN or infinite.
	ErrNonFinite = errors.New("trainer: non-finite loss")
	// ErrSampleCount is returned when a pass saw a different number of samples
	// than the loader declares.
	ErrSampleCount = errors.New("trainer: sample count does not match dataset size")
)

// Loader is a finite, restartable sequence of batches.
type Loader interface {
	Size() int
	NumBatches() int
	Batch(i int) (model.Batch, error)
}

// Optimizer applies updates to the parameters it was built with.
type Optimizer interface {
	Step() error
	ZeroGrad()
}

// Job bundles the collaborators of a run.
type Job struct {
	Model     model.Model
	Loss      nn.Loss
	Optimizer Optimizer
	Train     Loader
	Test      Loader
	// Reporter may be nil.
	Reporter Reporter
}

func (j *Job) validate() error {
	switch {
	case j.Model == nil:
		return errors.New("trainer: model is nil")
	case j.Loss == nil:
		return errors.New("trainer: loss is nil")
	case j.Optimizer == nil:
		return errors.New("trainer: optimizer is nil")
	case j.Train == nil:
		return errors.New("trainer: training loader is nil")
	case j.Test == nil:
		return errors.New("trainer: evaluation loader is nil")
	}
	if j.Reporter == nil {
		j.Reporter = nopReporter{}
	}
	return nil
}

// TrainResult summarises one training pass.
type TrainResult struct {
	Batches int
	Samples int
	// MeanLoss is the mean of the per-batch losses, each taken before its update.
	MeanLoss   float64
	Throughput metrics.ThroughputSnapshot
}

// EpochResult pairs the two passes of an epoch.
type EpochResult struct {
	Epoch int
	Train TrainResult
	Eval  metrics.Result
}

// Run validates its inputs, then runs opts.Epochs epochs of a training pass
// followed by an evaluation pass. It returns the results of every completed epoch.
func Run(ctx context.Context, opts Options, job Job) ([]EpochResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	if opts.Epochs > 0 && job.Test.NumBatches() == 0 {
		return nil, errors.Wrap(ErrEmptyDataset, "evaluation loader")
	}

	results := make([]EpochResult, 0, opts.Epochs)
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		job.Reporter.EpochStarted(epoch)
		train, err := TrainEpoch(ctx, epoch, job, opts.ReportInterval)
		if err != nil {
			return results, errors.Wrapf(err, "epoch %d train", epoch)
		}
		eval, err := Evaluate(ctx, job.Model, job.Test, job.Loss)
		if err != nil {
			return results, errors.Wrapf(err, "epoch %d eval", epoch)
		}
		job.Reporter.Evaluated(epoch, eval)
		results = append(results, EpochResult{Epoch: epoch, Train: train, Eval: eval})
	}
	job.Reporter.Finished()
	return results, nil
}

// TrainEpoch performs one forward/backward/update cycle per batch, in loader
// order. Gradients are cleared after every update. Cancellation is checked
// between batches; parameters keep whatever the last completed step produced.
func TrainEpoch(ctx context.Context, epoch int, job Job, reportInterval int) (TrainResult, error) {
	if reportInterval <= 0 {
		return TrainResult{}, errors.Wrapf(ErrInvalidOptions, "report interval must be > 0 (got %d)", reportInterval)
	}
	if err := job.validate(); err != nil {
		return TrainResult{}, err
	}
	var (
		res     TrainResult
		window  metrics.Throughput
		lossSum float64
	)
	size := job.Train.Size()
	for i := 0; i < job.Train.NumBatches(); i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := job.Train.Batch(i)
		if err != nil {
			return res, errors.Wrapf(err, "batch %d", i)
		}
		start := time.Now()
		loss, err := trainStep(job, batch)
		if err != nil {
			return res, errors.Wrapf(err, "batch %d", i)
		}
		window.Record(batch.Len(), time.Since(start), loss)

		res.Batches++
		res.Samples += batch.Len()
		lossSum += loss
		if i%reportInterval == 0 {
			job.Reporter.Progress(Progress{Epoch: epoch, Batch: i, Loss: loss, Current: res.Samples, Size: size})
		}
	}
	if res.Batches > 0 {
		res.MeanLoss = lossSum / float64(res.Batches)
	}
	res.Throughput = window.Snapshot()
	return res, nil
}

func trainStep(job Job, batch model.Batch) (float64, error) {
	logits, err := job.Model.Forward(batch.Features, nn.ModeTrain)
	if err != nil {
		return 0, err
	}
	loss, grad, err := job.Loss.ValueGrad(logits, batch.Labels)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, errors.Wrapf(ErrNonFinite, "loss=%g", loss)
	}
	if err := job.Model.Backward(grad); err != nil {
		return 0, err
	}
	if err := job.Optimizer.Step(); err != nil {
		return 0, errors.Wrap(err, "optimizer step")
	}
	job.Optimizer.ZeroGrad()
	return loss, nil
}

// Evaluate computes the mean batch loss and accuracy over loader in eval mode.
// No gradients are computed and no parameter is modified.
func Evaluate(ctx context.Context, m model.Model, loader Loader, loss nn.Loss) (metrics.Result, error) {
	n := loader.NumBatches()
	if n == 0 {
		return metrics.Result{}, ErrEmptyDataset
	}
	var running metrics.Running
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return metrics.Result{}, err
		}
		batch, err := loader.Batch(i)
		if err != nil {
			return metrics.Result{}, errors.Wrapf(err, "batch %d", i)
		}
		logits, err := m.Forward(batch.Features, nn.ModeEval)
		if err != nil {
			return metrics.Result{}, errors.Wrapf(err, "batch %d", i)
		}
		val, err := loss.Value(logits, batch.Labels)
		if err != nil {
			return metrics.Result{}, errors.Wrapf(err, "batch %d", i)
		}
		running.Record(val, metrics.CountCorrect(logits, batch.Labels), batch.Len())
	}
	res, err := running.Result()
	if err != nil {
		return metrics.Result{}, err
	}
	if res.Samples != loader.Size() {
		return res, errors.Wrapf(ErrSampleCount, "saw %d, declared %d", res.Samples, loader.Size())
	}
	return res, nil
}
