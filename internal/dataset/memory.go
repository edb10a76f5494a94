package dataset

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"epochforge/internal/model"
)

// ErrEmpty is returned when a dataset holds no samples.
var ErrEmpty = errors.New("dataset: no samples")

// Memory is an in-memory loader yielding fixed-size batches in row order. The
// final batch holds the remainder when the size is not a multiple of the batch size.
type Memory struct {
	features  *mat.Dense
	labels    []int
	batchSize int
	classes   int
}

// NewMemory wraps features (one sample per row) and labels.
func NewMemory(features *mat.Dense, labels []int, batchSize int) (*Memory, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset: batch size must be > 0 (got %d)", batchSize)
	}
	if features == nil || len(labels) == 0 {
		return nil, ErrEmpty
	}
	if r, _ := features.Dims(); r != len(labels) {
		return nil, errors.Errorf("dataset: %d feature rows, %d labels", r, len(labels))
	}
	classes := 0
	for i, y := range labels {
		if y < 0 {
			return nil, errors.Errorf("dataset: negative label %d at %d", y, i)
		}
		if y+1 > classes {
			classes = y + 1
		}
	}
	return &Memory{features: features, labels: labels, batchSize: batchSize, classes: classes}, nil
}

// FromSamples stacks samples into a Memory loader. All samples must share a width.
func FromSamples(samples []Sample, batchSize int) (*Memory, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	width := len(samples[0].Features)
	if width == 0 {
		return nil, errors.Errorf("dataset: sample %s has no features", samples[0].Key)
	}
	data := make([]float64, 0, len(samples)*width)
	labels := make([]int, len(samples))
	for i, s := range samples {
		if len(s.Features) != width {
			return nil, errors.Errorf("dataset: sample %s has %d features, want %d", s.Key, len(s.Features), width)
		}
		data = append(data, s.Features...)
		labels[i] = s.Label
	}
	return NewMemory(mat.NewDense(len(samples), width, data), labels, batchSize)
}

// Size is the number of samples.
func (m *Memory) Size() int {
	return len(m.labels)
}

// NumBatches is ceil(Size / batch size).
func (m *Memory) NumBatches() int {
	return (len(m.labels) + m.batchSize - 1) / m.batchSize
}

// BatchSize is the configured batch size.
func (m *Memory) BatchSize() int {
	return m.batchSize
}

// Features is the sample width.
func (m *Memory) Features() int {
	_, c := m.features.Dims()
	return c
}

// Classes is one more than the largest label.
func (m *Memory) Classes() int {
	return m.classes
}

// Batch returns batch i. The features are a view onto the loader's storage and
// must not be modified.
func (m *Memory) Batch(i int) (model.Batch, error) {
	if i < 0 || i >= m.NumBatches() {
		return model.Batch{}, errors.Errorf("dataset: batch %d out of range [0, %d)", i, m.NumBatches())
	}
	start := i * m.batchSize
	end := start + m.batchSize
	if end > len(m.labels) {
		end = len(m.labels)
	}
	_, c := m.features.Dims()
	view := m.features.Slice(start, end, 0, c).(*mat.Dense)
	return model.Batch{Features: view, Labels: m.labels[start:end:end]}, nil
}

// Samples copies the loader contents back out as samples, keyed by row index.
func (m *Memory) Samples() []Sample {
	out := make([]Sample, len(m.labels))
	for i := range out {
		out[i] = Sample{
			Key:      sampleKey(i),
			Features: append([]float64(nil), m.features.RawRowView(i)...),
			Label:    m.labels[i],
		}
	}
	return out
}
