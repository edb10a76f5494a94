package dataset

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// LoadOptions configures LoadShards.
type LoadOptions struct {
	NumWorkers int
	Stream     StreamOptions
}

// LoadShards reads every shard with a pool of workers and returns the samples
// in shard order, then member order within each shard, regardless of which
// worker finished first. The first shard error cancels the remaining work.
func LoadShards(parent context.Context, paths []string, opts LoadOptions) ([]Sample, error) {
	if len(paths) == 0 {
		return nil, errors.New("loader: no shards provided")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan shardJob)
	results := make(chan shardResult, opts.NumWorkers)

	go func() {
		defer close(jobs)
		for id, path := range paths {
			select {
			case <-ctx.Done():
				return
			case jobs <- shardJob{id: id, path: path}:
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, opts.Stream)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	return aggregate(ctx, cancel, results, len(paths))
}

type shardJob struct {
	id   int
	path string
}

type shardResult struct {
	id      int
	samples []Sample
	err     error
}

func worker(ctx context.Context, jobs <-chan shardJob, results chan<- shardResult, opts StreamOptions) {
	for job := range jobs {
		samples, err := readShard(ctx, job.path, opts)
		select {
		case <-ctx.Done():
			return
		case results <- shardResult{id: job.id, samples: samples, err: err}:
		}
	}
}

func readShard(ctx context.Context, path string, opts StreamOptions) ([]Sample, error) {
	stream, errCh := StreamShard(ctx, path, opts)
	var samples []Sample
	for s := range stream {
		samples = append(samples, s)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return samples, nil
}

// aggregate appends shard results strictly in id order, parking early arrivals.
func aggregate(ctx context.Context, cancel context.CancelFunc, results <-chan shardResult, total int) ([]Sample, error) {
	pending := make(map[int][]Sample)
	var out []Sample
	next := 0
	for next < total {
		if samples, ok := pending[next]; ok {
			out = append(out, samples...)
			delete(pending, next)
			next++
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil, errors.Errorf("loader: %d of %d shards missing", total-next, total)
			}
			if res.err != nil {
				cancel()
				return nil, res.err
			}
			pending[res.id] = res.samples
		}
	}
	return out, nil
}
