package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sample represents a paired record from a WebDataset shard: a feature vector
// (from a .feat file or a decoded image) and a .cls label.
type Sample struct {
	Key      string
	Features []float64
	Label    int
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamOptions controls how shard members are decoded.
type StreamOptions struct {
	PendingCap int
	// ImageGrid is the side of the grayscale grid images are reduced to.
	ImageGrid int
}

// StreamShard streams paired samples from the shard at path. The error channel
// receives at most one value and is closed with the sample channel.
func StreamShard(ctx context.Context, path string, opts StreamOptions) (<-chan Sample, <-chan error) {
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	if opts.ImageGrid <= 0 {
		opts.ImageGrid = defaultImageGrid
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- errors.Wrap(err, "open shard")
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- errors.Wrapf(err, "read tar %s", path)
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, ext)

			var features []float64
			var label *int
			switch ext {
			case ".feat":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read features %s", name)
					return
				}
				if features, err = parseFeatures(payload); err != nil {
					errCh <- errors.Wrapf(err, "parse features %s", name)
					return
				}
			case ".jpg", ".jpeg", ".png":
				data, err := io.ReadAll(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read image %s", name)
					return
				}
				if features, err = extractFeatures(data, opts.ImageGrid); err != nil {
					errCh <- errors.Wrapf(err, "decode image %s", name)
					return
				}
			case ".cls":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read label %s", name)
					return
				}
				v, err := strconv.Atoi(strings.TrimSpace(string(payload)))
				if err != nil {
					errCh <- errors.Wrapf(err, "parse label %s", name)
					return
				}
				label = &v
			default:
				continue
			}

			part := pending[key]
			if part == nil {
				part = &partial{}
				pending[key] = part
			}
			if features != nil {
				part.features = features
			}
			if label != nil {
				part.label = label
			}

			if len(pending) > opts.PendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part.ready() {
				delete(pending, key)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- Sample{Key: key, Features: part.features, Label: *part.label}:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- errors.Errorf("%s: %d samples incomplete", path, len(pending))
		}
	}()

	return out, errCh
}

type partial struct {
	features []float64
	label    *int
}

func (p *partial) ready() bool {
	return len(p.features) > 0 && p.label != nil
}

// WriteShard writes samples to path as <key>.feat / <key>.cls tar members.
func WriteShard(path string, samples []Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create shard dir")
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path))
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create shard")
	}
	bw := bufio.NewWriter(f)
	tw := tar.NewWriter(bw)
	for _, s := range samples {
		if err := addMember(tw, s.Key+".feat", formatFeatures(s.Features)); err != nil {
			f.Close()
			return err
		}
		if err := addMember(tw, s.Key+".cls", []byte(strconv.Itoa(s.Label))); err != nil {
			f.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		f.Close()
		return errors.Wrap(err, "close tar")
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "flush shard")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close shard")
	}
	return os.Rename(tmp, path)
}

// WriteShards splits samples into shards of at most perShard samples named
// shard-000000.tar, shard-000001.tar, ... under dir.
func WriteShards(dir string, samples []Sample, perShard int) ([]string, error) {
	if perShard <= 0 {
		return nil, errors.Errorf("webdataset: samples per shard must be > 0 (got %d)", perShard)
	}
	var paths []string
	for start, n := 0, 0; start < len(samples); start, n = start+perShard, n+1 {
		end := start + perShard
		if end > len(samples) {
			end = len(samples)
		}
		path := filepath.Join(dir, fmt.Sprintf("shard-%06d.tar", n))
		if err := WriteShard(path, samples[start:end]); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func addMember(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "write header %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}
