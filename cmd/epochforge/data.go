package main

import (
	"context"
	"log"
	"path/filepath"

	"github.com/pkg/errors"

	"epochforge/internal/config"
	"epochforge/internal/dataset"
)

const samplesPerShard = 256

func loadData(ctx context.Context, cfg *config.Config) (train, test *dataset.Memory, err error) {
	if cfg.Synthetic() {
		return synthetic(cfg)
	}
	roots, err := dataset.DiscoverByRoot([]string{cfg.Data.TrainRoot, cfg.Data.TestRoot})
	if err != nil {
		return nil, nil, err
	}
	opts := dataset.LoadOptions{
		NumWorkers: cfg.Data.NumWorkers,
		Stream:     dataset.StreamOptions{ImageGrid: cfg.Data.ImageGrid},
	}
	load := func(root string) (*dataset.Memory, error) {
		log.Printf("root=%s shards=%d", root, len(roots[root]))
		samples, err := dataset.LoadShards(ctx, roots[root], opts)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", root)
		}
		return dataset.FromSamples(samples, cfg.BatchSize)
	}
	if train, err = load(cfg.Data.TrainRoot); err != nil {
		return nil, nil, err
	}
	if test, err = load(cfg.Data.TestRoot); err != nil {
		return nil, nil, err
	}
	if train.Features() != test.Features() {
		return nil, nil, errors.Errorf("train has %d features, test has %d", train.Features(), test.Features())
	}
	return train, test, nil
}

func synthetic(cfg *config.Config) (train, test *dataset.Memory, err error) {
	s := cfg.Data.Synthetic
	x, y, err := dataset.Blobs(s.Train, s.Classes, s.Features, s.Spread, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	if train, err = dataset.NewMemory(x, y, cfg.BatchSize); err != nil {
		return nil, nil, err
	}
	x, y, err = dataset.Blobs(s.Test, s.Classes, s.Features, s.Spread, cfg.Seed+1)
	if err != nil {
		return nil, nil, err
	}
	if test, err = dataset.NewMemory(x, y, cfg.BatchSize); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// exportSynthetic writes the generated train and test sets as shard roots
// that a later run can point data.train_root and data.test_root at.
func exportSynthetic(cfg *config.Config, dir string) error {
	train, test, err := synthetic(cfg)
	if err != nil {
		return err
	}
	for _, set := range []struct {
		name string
		m    *dataset.Memory
	}{{"train", train}, {"test", test}} {
		name, m := set.name, set.m
		paths, err := dataset.WriteShards(filepath.Join(dir, name), m.Samples(), samplesPerShard)
		if err != nil {
			return errors.Wrapf(err, "export %s", name)
		}
		log.Printf("export=%s samples=%d shards=%d", name, m.Size(), len(paths))
	}
	return nil
}

func classes(sets ...*dataset.Memory) int {
	n := 0
	for _, s := range sets {
		if s.Classes() > n {
			n = s.Classes()
		}
	}
	return n
}
