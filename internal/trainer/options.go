package trainer

import "github.com/pkg/errors"

// DefaultReportInterval is the number of batches between progress reports.
const DefaultReportInterval = 100

// ErrInvalidOptions wraps every hyperparameter validation failure.
var ErrInvalidOptions = errors.New("trainer: invalid options")

// Options captures the hyperparameters of a run.
type Options struct {
	LearningRate   float64
	BatchSize      int
	Epochs         int
	ReportInterval int
}

// DefaultOptions mirrors the usual quickstart settings.
func DefaultOptions() Options {
	return Options{
		LearningRate:   1e-3,
		BatchSize:      64,
		Epochs:         5,
		ReportInterval: DefaultReportInterval,
	}
}

// Validate verifies the options are runnable.
func (o Options) Validate() error {
	if !(o.LearningRate > 0) {
		return errors.Wrapf(ErrInvalidOptions, "learning rate must be > 0 (got %g)", o.LearningRate)
	}
	if o.BatchSize <= 0 {
		return errors.Wrapf(ErrInvalidOptions, "batch size must be > 0 (got %d)", o.BatchSize)
	}
	if o.Epochs < 0 {
		return errors.Wrapf(ErrInvalidOptions, "epochs must be >= 0 (got %d)", o.Epochs)
	}
	if o.ReportInterval <= 0 {
		return errors.Wrapf(ErrInvalidOptions, "report interval must be > 0 (got %d)", o.ReportInterval)
	}
	return nil
}
