package model

import (
	"encoding/gob"
	"fmt"
	"os"
)

// snapshot is the gob wire form of a trained model.
type snapshot struct {
	InputSize  int
	HiddenSize int
	NumClasses int
	W1, B1     []float64
	W2, B2     []float64
}

// Save serializes the model parameters to path.
func (m *MLP) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	snap := snapshot{
		InputSize:  m.inputSize,
		HiddenSize: m.hiddenSize,
		NumClasses: m.numClasses,
		W1:         m.w1,
		B1:         m.b1,
		W2:         m.w2,
		B2:         m.b2,
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	return f.Close()
}

// Load restores a model saved with Save. The optimizer state is not part of
// the artifact; a loaded model is suitable for inference or fresh training.
func Load(path string) (*MLP, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(snap.W1) != snap.HiddenSize*snap.InputSize || len(snap.W2) != snap.NumClasses*snap.HiddenSize {
		return nil, fmt.Errorf("model file has inconsistent shapes")
	}
	m := &MLP{
		inputSize:  snap.InputSize,
		hiddenSize: snap.HiddenSize,
		numClasses: snap.NumClasses,
		w1:         snap.W1,
		b1:         snap.B1,
		w2:         snap.W2,
		b2:         snap.B2,
	}
	m.opt = newAdam(0.001, m.w1, m.b1, m.w2, m.b2)
	return m, nil
}
