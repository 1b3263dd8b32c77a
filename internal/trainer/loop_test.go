package trainer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mnist-trainer/internal/dataset"
	"mnist-trainer/internal/summary"
)

type fakeUploader struct {
	calls []uploadCall
	err   error
}

type uploadCall struct {
	bucket, object, localPath string
}

func (f *fakeUploader) Upload(ctx context.Context, bucket, object, localPath string) error {
	f.calls = append(f.calls, uploadCall{bucket, object, localPath})
	return f.err
}

func tinySplit() dataset.Split {
	return dataset.Split{
		X: [][]float64{
			{0.9, 0.1, 0.0, 0.0},
			{0.0, 0.1, 0.9, 0.0},
			{0.8, 0.0, 0.2, 0.1},
			{0.1, 0.0, 0.8, 0.2},
		},
		Y: [][]float64{
			{1, 0, 0},
			{0, 1, 0},
			{1, 0, 0},
			{0, 1, 0},
		},
	}
}

func baseConfig(t *testing.T, up *fakeUploader) RunConfig {
	t.Helper()
	tmp := t.TempDir()
	return RunConfig{
		Train:        tinySplit(),
		Test:         tinySplit(),
		Bucket:       "models-bucket",
		PathInBucket: "experiments/run-7",
		JobDir:       filepath.Join(tmp, "job"),
		BatchSize:    2,
		Epochs:       1,
		Seed:         1,
		LocalModel:   filepath.Join(tmp, "model.gob"),
		Uploader:     up,
		Now:          func() time.Time { return time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC) },
	}
}

func singleEventFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one event file in %s, got %d", dir, len(entries))
	}
	return filepath.Join(dir, entries[0].Name())
}

func TestRunEndToEnd(t *testing.T) {
	up := &fakeUploader{}
	cfg := baseConfig(t, up)

	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(cfg.LocalModel); err != nil {
		t.Fatalf("local model file missing: %v", err)
	}

	if len(up.calls) != 1 {
		t.Fatalf("expected exactly one upload, got %d", len(up.calls))
	}
	call := up.calls[0]
	if call.bucket != "models-bucket" {
		t.Fatalf("uploaded to bucket %q", call.bucket)
	}
	if !strings.HasPrefix(call.object, "experiments/run-7/") {
		t.Fatalf("object %q missing path prefix", call.object)
	}
	base := strings.TrimPrefix(call.object, "experiments/run-7/")
	if !strings.HasPrefix(base, "mnist_") || !strings.HasSuffix(base, ".gob") {
		t.Fatalf("object name %q not timestamped model artifact", base)
	}
	if call.localPath != cfg.LocalModel {
		t.Fatalf("uploaded %q, want %q", call.localPath, cfg.LocalModel)
	}

	metricFile := singleEventFile(t, filepath.Join(cfg.JobDir, MetricTag))
	scalars, err := summary.ReadScalars(metricFile)
	if err != nil {
		t.Fatalf("ReadScalars: %v", err)
	}
	if len(scalars) != 1 {
		t.Fatalf("expected one metric scalar, got %d", len(scalars))
	}
	if scalars[0].Tag != MetricTag {
		t.Fatalf("metric tag %q", scalars[0].Tag)
	}
	if scalars[0].Value < 0 || scalars[0].Value > 1 {
		t.Fatalf("accuracy %f outside [0,1]", scalars[0].Value)
	}
}

func TestRunWritesEpochScalars(t *testing.T) {
	up := &fakeUploader{}
	cfg := baseConfig(t, up)
	cfg.Epochs = 3

	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	logRoot := filepath.Join(cfg.JobDir, "logs", "scalars")
	stamps, err := os.ReadDir(logRoot)
	if err != nil {
		t.Fatalf("read log root: %v", err)
	}
	if len(stamps) != 1 {
		t.Fatalf("expected one timestamped log dir, got %d", len(stamps))
	}
	logFile := singleEventFile(t, filepath.Join(logRoot, stamps[0].Name()))
	scalars, err := summary.ReadScalars(logFile)
	if err != nil {
		t.Fatalf("ReadScalars: %v", err)
	}
	var losses, accs int
	for _, s := range scalars {
		switch s.Tag {
		case "epoch_loss":
			losses++
		case "epoch_accuracy":
			accs++
		default:
			t.Fatalf("unexpected tag %q", s.Tag)
		}
	}
	if losses != 3 || accs != 3 {
		t.Fatalf("expected 3 loss and 3 accuracy scalars, got %d and %d", losses, accs)
	}
}

func TestRunDeterministicMetric(t *testing.T) {
	run := func() float64 {
		up := &fakeUploader{}
		cfg := baseConfig(t, up)
		cfg.Epochs = 2
		if err := Run(context.Background(), cfg); err != nil {
			t.Fatalf("Run: %v", err)
		}
		metricFile := singleEventFile(t, filepath.Join(cfg.JobDir, MetricTag))
		scalars, err := summary.ReadScalars(metricFile)
		if err != nil {
			t.Fatalf("ReadScalars: %v", err)
		}
		return scalars[0].Value
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("same seed produced different accuracy: %f vs %f", a, b)
	}
}

func TestRunValidation(t *testing.T) {
	up := &fakeUploader{}

	cfg := baseConfig(t, up)
	cfg.Bucket = ""
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing bucket")
	}

	cfg = baseConfig(t, up)
	cfg.BatchSize = 0
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for zero batch size")
	}

	cfg = baseConfig(t, up)
	cfg.Uploader = nil
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for nil uploader")
	}

	if len(up.calls) != 0 {
		t.Fatalf("validation failures must not upload; got %d calls", len(up.calls))
	}
}

func TestRunUploadFailureAborts(t *testing.T) {
	up := &fakeUploader{err: context.DeadlineExceeded}
	cfg := baseConfig(t, up)

	err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected upload error to propagate")
	}
	if _, statErr := os.Stat(filepath.Join(cfg.JobDir, MetricTag)); !os.IsNotExist(statErr) {
		t.Fatal("metric summary must not be written after a failed upload")
	}
}

func TestRunCanceledContext(t *testing.T) {
	up := &fakeUploader{}
	cfg := baseConfig(t, up)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, cfg); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if len(up.calls) != 0 {
		t.Fatal("canceled run must not upload")
	}
}
