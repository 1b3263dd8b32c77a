package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mnist-trainer/internal/config"
	"mnist-trainer/internal/dataset"
	"mnist-trainer/internal/storage"
	"mnist-trainer/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to optional YAML config")
	outputBucket := flag.String("output-bucket", "", "GCS bucket receiving the model artifact (required)")
	outputPath := flag.String("output-path", "", "Path prefix inside the bucket (required)")
	batchSize := flag.Int("batch-size", 0, "Training batch size")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	jobDir := flag.String("job-dir", "", "Directory for logs and metric summaries")
	dataDir := flag.String("data-dir", "", "MNIST download cache directory")
	seed := flag.Int64("seed", 0, "PRNG seed")
	learningRate := flag.Float64("learning-rate", 0, "Adam learning rate")
	hiddenUnits := flag.Int("hidden-units", 0, "Hidden layer width")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text or json)")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		OutputBucket: *outputBucket,
		OutputPath:   *outputPath,
		BatchSize:    *batchSize,
		Epochs:       *epochs,
		JobDir:       *jobDir,
		DataDir:      *dataDir,
		Seed:         *seed,
		LearningRate: *learningRate,
		HiddenUnits:  *hiddenUnits,
		LogLevel:     *logLevel,
		LogFormat:    *logFormat,
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("training job failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("preparing and downloading data", "dir", cfg.DataDir)
	rawTrain, rawTest, err := dataset.Fetch(ctx, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("fetch dataset: %w", err)
	}
	train, err := dataset.Prepare(rawTrain)
	if err != nil {
		return fmt.Errorf("prepare train split: %w", err)
	}
	test, err := dataset.Prepare(rawTest)
	if err != nil {
		return fmt.Errorf("prepare test split: %w", err)
	}
	logger.Info("data ready", "train_examples", train.Len(), "test_examples", test.Len())

	uploader, err := storage.NewGCS(ctx)
	if err != nil {
		return err
	}
	defer uploader.Close()

	return trainer.Run(ctx, trainer.RunConfig{
		Train:        train,
		Test:         test,
		Bucket:       cfg.OutputBucket,
		PathInBucket: cfg.OutputPath,
		JobDir:       cfg.JobDir,
		BatchSize:    cfg.BatchSize,
		Epochs:       cfg.Epochs,
		Seed:         cfg.Seed,
		LearningRate: cfg.LearningRate,
		HiddenUnits:  cfg.HiddenUnits,
		Uploader:     uploader,
		Logger:       logger,
	})
}

// newLogger builds an isolated slog.Logger; it does not touch the global
// default.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	} else {
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler)
}
