package model

import (
	"math"
	"path/filepath"
	"testing"
)

func toyBatch() Batch {
	return Batch{
		Inputs: [][]float64{
			{0.9, 0.1, 0.0, 0.0},
			{0.0, 0.0, 0.9, 0.1},
			{0.8, 0.2, 0.1, 0.0},
			{0.1, 0.0, 0.8, 0.2},
		},
		Targets: [][]float64{
			{1, 0, 0},
			{0, 1, 0},
			{1, 0, 0},
			{0, 1, 0},
		},
	}
}

func TestTrainBatchReducesLoss(t *testing.T) {
	m := New(4, 8, 3, 0.01, 1)
	batch := toyBatch()
	first := m.TrainBatch(batch)
	var last float64
	for i := 0; i < 50; i++ {
		last = m.TrainBatch(batch)
	}
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}
}

func TestEvaluateSeparableData(t *testing.T) {
	m := New(4, 8, 3, 0.05, 7)
	batch := toyBatch()
	for i := 0; i < 200; i++ {
		m.TrainBatch(batch)
	}
	loss, acc := m.Evaluate(batch.Inputs, batch.Targets)
	if acc != 1.0 {
		t.Fatalf("expected perfect accuracy on separable toy set, got %f", acc)
	}
	if loss <= 0 || loss > 0.5 {
		t.Fatalf("unexpected loss %f", loss)
	}
}

func TestForwardIsDistribution(t *testing.T) {
	m := New(4, 8, 3, 0.01, 3)
	probs := m.Forward([]float64{0.2, 0.4, 0.6, 0.8})
	sum := 0.0
	for _, p := range probs {
		if p < 0 || p > 1 {
			t.Fatalf("probability out of range: %f", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %f", sum)
	}
}

func TestDeterministicInit(t *testing.T) {
	a := New(4, 8, 3, 0.01, 42)
	b := New(4, 8, 3, 0.01, 42)
	x := []float64{0.3, 0.1, 0.7, 0.2}
	pa, pb := a.Forward(x), b.Forward(x)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("same seed produced different models: %v vs %v", pa, pb)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := New(4, 8, 3, 0.05, 11)
	batch := toyBatch()
	for i := 0; i < 20; i++ {
		m.TrainBatch(batch)
	}
	path := filepath.Join(t.TempDir(), "model.gob")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	x := []float64{0.5, 0.1, 0.2, 0.9}
	want, got := m.Forward(x), loaded.Forward(x)
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("loaded model predicts differently: %v vs %v", want, got)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.gob")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
