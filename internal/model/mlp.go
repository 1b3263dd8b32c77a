package model

import (
	"math"
	"math/rand"
)

// MLP is a single-hidden-layer classifier: input -> ReLU hidden -> softmax.
type MLP struct {
	inputSize  int
	hiddenSize int
	numClasses int
	w1, b1     []float64 // hidden x input, hidden
	w2, b2     []float64 // classes x hidden, classes
	opt        *adam
}

// New constructs the model with seeded random initialization.
func New(inputSize, hiddenSize, numClasses int, lr float64, seed int64) *MLP {
	if inputSize <= 0 {
		inputSize = 784
	}
	if hiddenSize <= 0 {
		hiddenSize = 128
	}
	if numClasses <= 0 {
		numClasses = 10
	}
	if lr <= 0 {
		lr = 0.001
	}
	rng := rand.New(rand.NewSource(seed))
	m := &MLP{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		numClasses: numClasses,
		w1:         initWeights(rng, hiddenSize*inputSize, inputSize),
		b1:         make([]float64, hiddenSize),
		w2:         initWeights(rng, numClasses*hiddenSize, hiddenSize),
		b2:         make([]float64, numClasses),
	}
	m.opt = newAdam(lr, m.w1, m.b1, m.w2, m.b2)
	return m
}

func initWeights(rng *rand.Rand, n, fanIn int) []float64 {
	scale := 1.0 / math.Sqrt(float64(fanIn))
	w := make([]float64, n)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * scale
	}
	return w
}

// Classes returns the number of output classes.
func (m *MLP) Classes() int { return m.numClasses }

// InputSize returns the expected feature vector length.
func (m *MLP) InputSize() int { return m.inputSize }

// Forward computes class probabilities for a single feature vector.
func (m *MLP) Forward(x []float64) []float64 {
	hidden := make([]float64, m.hiddenSize)
	m.forwardHidden(x, hidden)
	return softmax(m.logits(hidden))
}

func (m *MLP) forwardHidden(x, hidden []float64) {
	for j := 0; j < m.hiddenSize; j++ {
		sum := m.b1[j]
		row := j * m.inputSize
		for i := 0; i < m.inputSize; i++ {
			sum += m.w1[row+i] * x[i]
		}
		if sum < 0 {
			sum = 0
		}
		hidden[j] = sum
	}
}

func (m *MLP) logits(hidden []float64) []float64 {
	logits := make([]float64, m.numClasses)
	for c := 0; c < m.numClasses; c++ {
		sum := m.b2[c]
		row := c * m.hiddenSize
		for j := 0; j < m.hiddenSize; j++ {
			sum += m.w2[row+j] * hidden[j]
		}
		logits[c] = sum
	}
	return logits
}

// TrainBatch runs one optimizer step on the minibatch and returns the mean
// cross-entropy loss. Gradients are averaged over the batch before the Adam
// update.
func (m *MLP) TrainBatch(batch Batch) float64 {
	n := len(batch.Inputs)
	if n == 0 {
		return 0
	}
	gw1 := make([]float64, len(m.w1))
	gb1 := make([]float64, len(m.b1))
	gw2 := make([]float64, len(m.w2))
	gb2 := make([]float64, len(m.b2))
	hidden := make([]float64, m.hiddenSize)
	dHidden := make([]float64, m.hiddenSize)

	totalLoss := 0.0
	for i, x := range batch.Inputs {
		if len(x) != m.inputSize {
			continue
		}
		target := batch.Targets[i]
		m.forwardHidden(x, hidden)
		probs := softmax(m.logits(hidden))

		label := argmax(target)
		totalLoss += -math.Log(math.Max(probs[label], 1e-9))

		// dL/dlogits for softmax cross-entropy
		for c := range probs {
			probs[c] -= target[c]
		}
		for j := range dHidden {
			dHidden[j] = 0
		}
		for c := 0; c < m.numClasses; c++ {
			g := probs[c]
			gb2[c] += g
			row := c * m.hiddenSize
			for j := 0; j < m.hiddenSize; j++ {
				gw2[row+j] += g * hidden[j]
				dHidden[j] += g * m.w2[row+j]
			}
		}
		for j := 0; j < m.hiddenSize; j++ {
			if hidden[j] <= 0 {
				continue
			}
			g := dHidden[j]
			gb1[j] += g
			row := j * m.inputSize
			for k := 0; k < m.inputSize; k++ {
				gw1[row+k] += g * x[k]
			}
		}
	}

	inv := 1.0 / float64(n)
	for _, g := range [][]float64{gw1, gb1, gw2, gb2} {
		for i := range g {
			g[i] *= inv
		}
	}
	m.opt.step([][]float64{m.w1, m.b1, m.w2, m.b2}, [][]float64{gw1, gb1, gw2, gb2})
	return totalLoss * inv
}

// Evaluate computes mean cross-entropy loss and categorical accuracy over a
// feature/target set.
func (m *MLP) Evaluate(xs, ys [][]float64) (loss, accuracy float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	correct := 0
	for i, x := range xs {
		probs := m.Forward(x)
		label := argmax(ys[i])
		loss += -math.Log(math.Max(probs[label], 1e-9))
		if argmax(probs) == label {
			correct++
		}
	}
	n := float64(len(xs))
	return loss / n, float64(correct) / n
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
