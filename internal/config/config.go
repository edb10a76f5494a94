// Package config loads the YAML run configuration and merges CLI overrides.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config captures the runtime knobs for a training run.
type Config struct {
	LearningRate   float64 `yaml:"learning_rate"`
	Momentum       float64 `yaml:"momentum"`
	BatchSize      int     `yaml:"batch_size"`
	Epochs         int     `yaml:"epochs"`
	ReportInterval int     `yaml:"report_interval"`
	Seed           int64   `yaml:"seed"`
	Loss           string  `yaml:"loss"`

	Model  ModelConfig  `yaml:"model"`
	Data   DataConfig   `yaml:"data"`
	Output OutputConfig `yaml:"output"`
}

// ModelConfig shapes the classifier.
type ModelConfig struct {
	Hidden  []int   `yaml:"hidden"`
	Dropout float64 `yaml:"dropout"`
}

// DataConfig selects the shard roots. When both roots are empty a synthetic
// dataset is generated instead.
type DataConfig struct {
	TrainRoot  string          `yaml:"train_root"`
	TestRoot   string          `yaml:"test_root"`
	NumWorkers int             `yaml:"num_workers"`
	ImageGrid  int             `yaml:"image_grid"`
	Synthetic  SyntheticConfig `yaml:"synthetic"`
}

// SyntheticConfig sizes the generated Gaussian blobs.
type SyntheticConfig struct {
	Train    int     `yaml:"train"`
	Test     int     `yaml:"test"`
	Classes  int     `yaml:"classes"`
	Features int     `yaml:"features"`
	Spread   float64 `yaml:"spread"`
}

// OutputConfig names the run artefacts. Empty paths are skipped.
type OutputConfig struct {
	Checkpoint string `yaml:"checkpoint"`
	// Format is "state" (parameters only) or "model" (layers and parameters).
	Format string `yaml:"format"`
	Plot   string `yaml:"plot"`
}

// Overrides captures CLI supplied values. Zero values leave the config alone,
// except Epochs where a negative value means unset.
type Overrides struct {
	Epochs         int
	BatchSize      int
	LearningRate   float64
	ReportInterval int
	Seed           int64
	NumWorkers     int
	Checkpoint     string
	Plot           string
}

// Default returns a runnable configuration for the synthetic dataset.
func Default() *Config {
	return &Config{
		LearningRate:   1e-3,
		Momentum:       0,
		BatchSize:      64,
		Epochs:         5,
		ReportInterval: 100,
		Seed:           1,
		Loss:           "cross_entropy",
		Model:          ModelConfig{Hidden: []int{64}},
		Data: DataConfig{
			NumWorkers: 4,
			ImageGrid:  16,
			Synthetic: SyntheticConfig{
				Train:    2000,
				Test:     500,
				Classes:  3,
				Features: 8,
				Spread:   1.0,
			},
		},
		Output: OutputConfig{Format: "state"},
	}
}

// Load reads path on top of Default and validates the result. Unknown keys
// are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any set override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Epochs >= 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.ReportInterval > 0 {
		c.ReportInterval = o.ReportInterval
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.NumWorkers > 0 {
		c.Data.NumWorkers = o.NumWorkers
	}
	if o.Checkpoint != "" {
		c.Output.Checkpoint = o.Checkpoint
	}
	if o.Plot != "" {
		c.Output.Plot = o.Plot
	}
}

// Synthetic reports whether the run uses generated data.
func (c *Config) Synthetic() bool {
	return c.Data.TrainRoot == "" && c.Data.TestRoot == ""
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalid, "config is nil")
	}
	switch {
	case !(c.LearningRate > 0):
		return errors.Wrapf(ErrInvalid, "learning_rate must be > 0 (got %g)", c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errors.Wrapf(ErrInvalid, "momentum must be in [0, 1) (got %g)", c.Momentum)
	case c.BatchSize <= 0:
		return errors.Wrapf(ErrInvalid, "batch_size must be > 0 (got %d)", c.BatchSize)
	case c.Epochs < 0:
		return errors.Wrapf(ErrInvalid, "epochs must be >= 0 (got %d)", c.Epochs)
	case c.ReportInterval <= 0:
		return errors.Wrapf(ErrInvalid, "report_interval must be > 0 (got %d)", c.ReportInterval)
	}
	switch c.Loss {
	case "cross_entropy", "mse":
	default:
		return errors.Wrapf(ErrInvalid, "unknown loss %q", c.Loss)
	}
	if len(c.Model.Hidden) == 0 {
		return errors.Wrap(ErrInvalid, "model.hidden needs at least one layer")
	}
	for _, h := range c.Model.Hidden {
		if h <= 0 {
			return errors.Wrapf(ErrInvalid, "model.hidden widths must be > 0 (got %d)", h)
		}
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return errors.Wrapf(ErrInvalid, "model.dropout must be in [0, 1) (got %g)", c.Model.Dropout)
	}
	if err := c.Data.validate(c.Synthetic()); err != nil {
		return err
	}
	switch c.Output.Format {
	case "state", "model":
	default:
		return errors.Wrapf(ErrInvalid, "output.format must be state or model (got %q)", c.Output.Format)
	}
	return nil
}

func (d DataConfig) validate(synthetic bool) error {
	if d.NumWorkers <= 0 {
		return errors.Wrapf(ErrInvalid, "data.num_workers must be > 0 (got %d)", d.NumWorkers)
	}
	if d.ImageGrid <= 0 {
		return errors.Wrapf(ErrInvalid, "data.image_grid must be > 0 (got %d)", d.ImageGrid)
	}
	if !synthetic {
		if d.TrainRoot == "" || d.TestRoot == "" {
			return errors.Wrap(ErrInvalid, "data.train_root and data.test_root must be set together")
		}
		return nil
	}
	s := d.Synthetic
	switch {
	case s.Train <= 0 || s.Test <= 0:
		return errors.Wrapf(ErrInvalid, "synthetic train/test sizes must be > 0 (got %d/%d)", s.Train, s.Test)
	case s.Classes < 2:
		return errors.Wrapf(ErrInvalid, "synthetic classes must be >= 2 (got %d)", s.Classes)
	case s.Features <= 0:
		return errors.Wrapf(ErrInvalid, "synthetic features must be > 0 (got %d)", s.Features)
	case !(s.Spread > 0):
		return errors.Wrapf(ErrInvalid, "synthetic spread must be > 0 (got %g)", s.Spread)
	}
	return nil
}
