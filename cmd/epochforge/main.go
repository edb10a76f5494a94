package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"epochforge/internal/checkpoint"
	"epochforge/internal/config"
	"epochforge/internal/model"
	"epochforge/internal/nn"
	"epochforge/internal/optim"
	"epochforge/internal/report"
	"epochforge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults when empty)")
	epochs := flag.Int("epochs", -1, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	lr := flag.Float64("lr", 0, "Learning rate")
	reportEvery := flag.Int("report-every", 0, "Report training loss every N batches")
	seed := flag.Int64("seed", 0, "PRNG seed")
	numWorkers := flag.Int("num-workers", 0, "Number of shard loader workers")
	ckptPath := flag.String("checkpoint", "", "Write a checkpoint to this path")
	plotPath := flag.String("plot", "", "Write training curves to this path (.svg, .png, .pdf)")
	exportDir := flag.String("export", "", "Write the synthetic dataset as shards under this directory and exit")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	cfg.ApplyOverrides(config.Overrides{
		Epochs:         *epochs,
		BatchSize:      *batchSize,
		LearningRate:   *lr,
		ReportInterval: *reportEvery,
		Seed:           *seed,
		NumWorkers:     *numWorkers,
		Checkpoint:     *ckptPath,
		Plot:           *plotPath,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *exportDir != "" {
		if err := exportSynthetic(cfg, *exportDir); err != nil {
			log.Fatalf("export failed: %v", err)
		}
		return
	}

	runID := uuid.NewString()
	log.Printf("run=%s epochs=%d batch_size=%d lr=%g momentum=%g loss=%s", runID, cfg.Epochs, cfg.BatchSize, cfg.LearningRate, cfg.Momentum, cfg.Loss)

	train, test, err := loadData(ctx, cfg)
	if err != nil {
		log.Fatalf("load data: %v", err)
	}
	log.Printf("train_samples=%d test_samples=%d features=%d classes=%d", train.Size(), test.Size(), train.Features(), classes(train, test))

	netCfg := model.ClassifierConfig{
		Inputs:  train.Features(),
		Hidden:  cfg.Model.Hidden,
		Classes: classes(train, test),
		Dropout: cfg.Model.Dropout,
	}
	net, err := model.NewClassifier(netCfg, cfg.Seed)
	if err != nil {
		log.Fatalf("build model: %v", err)
	}
	log.Printf("model\n%s", net.Summary())

	opt, err := optim.NewSGD(net.Parameters(), cfg.LearningRate, cfg.Momentum)
	if err != nil {
		log.Fatalf("build optimizer: %v", err)
	}
	loss, err := nn.LossByName(cfg.Loss)
	if err != nil {
		log.Fatalf("build loss: %v", err)
	}

	history := &report.History{}
	opts := trainer.Options{
		LearningRate:   cfg.LearningRate,
		BatchSize:      cfg.BatchSize,
		Epochs:         cfg.Epochs,
		ReportInterval: cfg.ReportInterval,
	}
	job := trainer.Job{
		Model:     net,
		Loss:      loss,
		Optimizer: opt,
		Train:     train,
		Test:      test,
		Reporter:  trainer.MultiReporter{trainer.NewTextReporter(os.Stdout), history},
	}
	results, err := trainer.Run(ctx, opts, job)
	for _, r := range results {
		tp := r.Train.Throughput
		log.Printf("epoch=%d train_loss=%.4f samples_per_sec=%.1f avg_step_ms=%.3f test_loss=%.4f accuracy=%.3f",
			r.Epoch, r.Train.MeanLoss, tp.SamplesPerSec, tp.AvgStepMS, r.Eval.MeanLoss, r.Eval.Accuracy)
	}
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	if best, ok := history.Best(); ok {
		log.Printf("best_epoch=%d accuracy=%.3f steps=%d", best.Epoch, best.Accuracy, opt.Steps())
	}

	if cfg.Output.Checkpoint != "" {
		if err := saveCheckpoint(cfg, runID, net); err != nil {
			log.Fatalf("save checkpoint: %v", err)
		}
		log.Printf("checkpoint=%s format=%s", cfg.Output.Checkpoint, cfg.Output.Format)

		reloaded, err := reloadCheckpoint(cfg, netCfg)
		if err != nil {
			log.Fatalf("reload checkpoint: %v", err)
		}
		res, err := trainer.Evaluate(ctx, reloaded, test, loss)
		if err != nil {
			log.Fatalf("evaluate reloaded model: %v", err)
		}
		log.Printf("reloaded accuracy=%.3f test_loss=%.4f", res.Accuracy, res.MeanLoss)
	}

	first, err := test.Batch(0)
	if err != nil {
		log.Fatalf("read test batch: %v", err)
	}
	predicted, err := model.Predict(net, first.Features)
	if err != nil {
		log.Fatalf("predict: %v", err)
	}
	for i := 0; i < len(predicted) && i < 10; i++ {
		log.Printf("predicted=%d actual=%d", predicted[i], first.Labels[i])
	}

	if cfg.Output.Plot != "" {
		if err := history.SavePlot(cfg.Output.Plot); err != nil {
			log.Fatalf("plot: %v", err)
		}
		log.Printf("plot=%s", cfg.Output.Plot)
	}
}

func saveCheckpoint(cfg *config.Config, runID string, net *nn.Sequential) error {
	return checkpoint.WriteFile(cfg.Output.Checkpoint, func(w io.Writer) error {
		if cfg.Output.Format == checkpoint.KindModel {
			return checkpoint.SaveModel(w, runID, net)
		}
		return checkpoint.SaveState(w, runID, net.Parameters())
	})
}

// reloadCheckpoint reads the checkpoint back into a fresh model. State files
// need the same architecture rebuilt first.
func reloadCheckpoint(cfg *config.Config, netCfg model.ClassifierConfig) (*nn.Sequential, error) {
	var net *nn.Sequential
	err := checkpoint.ReadFile(cfg.Output.Checkpoint, func(r io.Reader) error {
		if cfg.Output.Format == checkpoint.KindModel {
			var err error
			net, _, err = checkpoint.LoadModel(r)
			return err
		}
		fresh, err := model.NewClassifier(netCfg, cfg.Seed+1)
		if err != nil {
			return err
		}
		if _, err := checkpoint.LoadState(r, fresh.Parameters()); err != nil {
			return err
		}
		net = fresh
		return nil
	})
	return net, err
}
