// Package checkpoint persists model parameters, optionally with the layer
// structure, as zlib-compressed gob streams.
package checkpoint

import (
	"compress/zlib"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"epochforge/internal/nn"
)

const (
	// KindState files hold parameters only; loading needs an identically built model.
	KindState = "state"
	// KindModel files also hold the layer specs needed to rebuild the model.
	KindModel = "model"

	formatVersion = 1
)

var (
	// ErrMismatch is returned when stored parameters do not fit the target model.
	ErrMismatch = errors.New("checkpoint: parameters do not match model")
	// ErrKind is returned when a file holds a different kind of checkpoint.
	ErrKind = errors.New("checkpoint: unexpected checkpoint kind")
)

// Header identifies a checkpoint.
type Header struct {
	Kind    string
	Version int
	RunID   string
	Created time.Time
}

// NewHeader stamps a header; an empty runID gets a fresh one.
func NewHeader(kind, runID string) Header {
	if runID == "" {
		runID = uuid.NewString()
	}
	return Header{Kind: kind, Version: formatVersion, RunID: runID, Created: time.Now().UTC()}
}

func (h Header) check(kinds ...string) error {
	if h.Version != formatVersion {
		return errors.Errorf("checkpoint: unsupported version %d", h.Version)
	}
	if _, err := uuid.Parse(h.RunID); err != nil {
		return errors.Wrap(err, "checkpoint: bad run id")
	}
	for _, k := range kinds {
		if h.Kind == k {
			return nil
		}
	}
	return errors.Wrapf(ErrKind, "got %q, want one of %v", h.Kind, kinds)
}

type tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

type file struct {
	Header Header
	Layers []nn.LayerSpec
	Params []tensor
}

// SaveState writes the parameters alone.
func SaveState(w io.Writer, runID string, params []*nn.Parameter) error {
	return encode(w, file{Header: NewHeader(KindState, runID), Params: snapshot(params)})
}

// LoadState copies stored values into params. Names, order and shapes must
// match exactly; on mismatch params are left untouched. Full model files are
// accepted too.
func LoadState(r io.Reader, params []*nn.Parameter) (Header, error) {
	f, err := decode(r)
	if err != nil {
		return Header{}, err
	}
	if err := f.Header.check(KindState, KindModel); err != nil {
		return f.Header, err
	}
	if err := restore(f.Params, params); err != nil {
		return f.Header, err
	}
	return f.Header, nil
}

// SaveModel writes the layer specs and parameters of net.
func SaveModel(w io.Writer, runID string, net *nn.Sequential) error {
	return encode(w, file{
		Header: NewHeader(KindModel, runID),
		Layers: net.Specs(),
		Params: snapshot(net.Parameters()),
	})
}

// LoadModel rebuilds a model saved with SaveModel.
func LoadModel(r io.Reader) (*nn.Sequential, Header, error) {
	f, err := decode(r)
	if err != nil {
		return nil, Header{}, err
	}
	if err := f.Header.check(KindModel); err != nil {
		return nil, f.Header, err
	}
	net, err := nn.Build(f.Layers, f.Header.Created.UnixNano())
	if err != nil {
		return nil, f.Header, errors.Wrap(err, "checkpoint: rebuild model")
	}
	if err := restore(f.Params, net.Parameters()); err != nil {
		return nil, f.Header, err
	}
	return net, f.Header, nil
}

// WriteFile writes through a temporary file in the same directory and renames
// it over path once write succeeds.
func WriteFile(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create checkpoint dir")
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path))
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close checkpoint")
	}
	return os.Rename(tmp, path)
}

// ReadFile opens path and hands it to read.
func ReadFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()
	return read(f)
}

func snapshot(params []*nn.Parameter) []tensor {
	out := make([]tensor, len(params))
	for i, p := range params {
		r, c := p.Value.Dims()
		data := make([]float64, 0, r*c)
		for row := 0; row < r; row++ {
			data = append(data, p.Value.RawRowView(row)...)
		}
		out[i] = tensor{Name: p.Name, Rows: r, Cols: c, Data: data}
	}
	return out
}

func restore(stored []tensor, params []*nn.Parameter) error {
	if len(stored) != len(params) {
		return errors.Wrapf(ErrMismatch, "%d stored parameters, model has %d", len(stored), len(params))
	}
	for i, t := range stored {
		p := params[i]
		r, c := p.Value.Dims()
		if t.Name != p.Name {
			return errors.Wrapf(ErrMismatch, "parameter %d is %s, model has %s", i, t.Name, p.Name)
		}
		if t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return errors.Wrapf(ErrMismatch, "%s is %dx%d, model has %dx%d", t.Name, t.Rows, t.Cols, r, c)
		}
	}
	for i, t := range stored {
		p := params[i]
		for row := 0; row < t.Rows; row++ {
			copy(p.Value.RawRowView(row), t.Data[row*t.Cols:(row+1)*t.Cols])
		}
	}
	return nil
}

func encode(w io.Writer, f file) error {
	zw := zlib.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(f); err != nil {
		zw.Close()
		return errors.Wrap(err, "checkpoint: encode")
	}
	return errors.Wrap(zw.Close(), "checkpoint: compress")
}

func decode(r io.Reader) (file, error) {
	var f file
	zr, err := zlib.NewReader(r)
	if err != nil {
		return f, errors.Wrap(err, "checkpoint: decompress")
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(&f); err != nil {
		return f, errors.Wrap(err, "checkpoint: decode")
	}
	return f, nil
}
