package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path"
	"path/filepath"
	"time"

	"mnist-trainer/internal/dataset"
	"mnist-trainer/internal/metrics"
	"mnist-trainer/internal/model"
	"mnist-trainer/internal/storage"
	"mnist-trainer/internal/summary"
)

// MetricTag is the scalar summary name the hyperparameter tuning controller
// reads from the job directory.
const MetricTag = "accuracyMnist"

// Cap on how many training examples feed the per-epoch accuracy scalar, so
// the extra forward passes stay cheap relative to the epoch itself.
const epochEvalCap = 10000

// RunConfig captures the knobs required by the training pipeline.
type RunConfig struct {
	Train, Test  dataset.Split
	Bucket       string
	PathInBucket string
	JobDir       string
	BatchSize    int
	Epochs       int
	Seed         int64
	LearningRate float64
	HiddenUnits  int
	LocalModel   string
	Uploader     storage.Uploader
	Logger       *slog.Logger
	Now          func() time.Time
}

// Run trains the classifier, evaluates it, exports the artifact to object
// storage and reports the test accuracy summary. Any failing step aborts the
// run; there are no retries.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.BatchSize <= 0 {
		return errors.New("trainer: batch size must be > 0")
	}
	if cfg.Epochs <= 0 {
		return errors.New("trainer: epochs must be > 0")
	}
	if cfg.Bucket == "" || cfg.PathInBucket == "" {
		return errors.New("trainer: output bucket and path are required")
	}
	if cfg.Uploader == nil {
		return errors.New("trainer: uploader is required")
	}
	if cfg.Train.Len() == 0 || cfg.Test.Len() == 0 {
		return errors.New("trainer: train and test splits must be non-empty")
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if cfg.LocalModel == "" {
		cfg.LocalModel = "model.gob"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logDir := filepath.Join(cfg.JobDir, "logs", "scalars", now().Format("20060102-150405"))
	logger.Info("writing training logs", "dir", logDir)
	tb, err := summary.Create(logDir)
	if err != nil {
		return fmt.Errorf("open log writer: %w", err)
	}
	defer tb.Close()

	m := model.New(len(cfg.Train.X[0]), cfg.HiddenUnits, len(cfg.Train.Y[0]), cfg.LearningRate, cfg.Seed)

	rng := rand.New(rand.NewSource(cfg.Seed))
	indexes := make([]int, cfg.Train.Len())
	for i := range indexes {
		indexes[i] = i
	}

	var window metrics.Window
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(indexes), func(i, j int) {
			indexes[i], indexes[j] = indexes[j], indexes[i]
		})
		for start := 0; start < len(indexes); start += cfg.BatchSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			end := start + cfg.BatchSize
			if end > len(indexes) {
				end = len(indexes)
			}
			batch := assembleBatch(cfg.Train, indexes[start:end])
			stepStart := time.Now()
			loss := m.TrainBatch(batch)
			window.Record(len(batch.Inputs), time.Since(stepStart), loss)
		}

		snap := window.Snapshot()
		evalN := cfg.Train.Len()
		if evalN > epochEvalCap {
			evalN = epochEvalCap
		}
		_, epochAcc := m.Evaluate(cfg.Train.X[:evalN], cfg.Train.Y[:evalN])

		logger.Info("epoch complete",
			"epoch", epoch,
			"loss", snap.AvgLoss,
			"accuracy", epochAcc,
			"examples_per_sec", snap.ExamplesPerSec,
			"avg_step_ms", snap.AvgStepMS,
		)
		if err := tb.WriteScalar("epoch_loss", int64(epoch), snap.AvgLoss); err != nil {
			return fmt.Errorf("write epoch loss: %w", err)
		}
		if err := tb.WriteScalar("epoch_accuracy", int64(epoch), epochAcc); err != nil {
			return fmt.Errorf("write epoch accuracy: %w", err)
		}
	}

	testLoss, testAcc := m.Evaluate(cfg.Test.X, cfg.Test.Y)
	logger.Info("evaluation complete", "test_loss", testLoss, "test_accuracy", testAcc)

	if err := m.Save(cfg.LocalModel); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	// The local copy stays in place after upload, matching the job's
	// historical behavior.

	object := path.Join(cfg.PathInBucket, "mnist_"+now().Format("20060102150405")+".gob")
	logger.Info("uploading model", "bucket", cfg.Bucket, "object", object)
	if err := cfg.Uploader.Upload(ctx, cfg.Bucket, object, cfg.LocalModel); err != nil {
		return fmt.Errorf("upload model: %w", err)
	}

	evalDir := filepath.Join(cfg.JobDir, MetricTag)
	logger.Info("writing metric summary", "dir", evalDir, "tag", MetricTag, "value", testAcc)
	mw, err := summary.Create(evalDir)
	if err != nil {
		return fmt.Errorf("open metric writer: %w", err)
	}
	if err := mw.WriteScalar(MetricTag, int64(cfg.Epochs), testAcc); err != nil {
		mw.Close()
		return fmt.Errorf("write metric: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close metric writer: %w", err)
	}
	return nil
}

func assembleBatch(split dataset.Split, indexes []int) model.Batch {
	batch := model.Batch{
		Inputs:  make([][]float64, 0, len(indexes)),
		Targets: make([][]float64, 0, len(indexes)),
	}
	for _, i := range indexes {
		batch.Inputs = append(batch.Inputs, split.X[i])
		batch.Targets = append(batch.Targets, split.Y[i])
	}
	return batch
}
