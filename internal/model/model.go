package model

// Batch represents a minibatch of feature vectors and one-hot targets.
type Batch struct {
	Inputs  [][]float64
	Targets [][]float64
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
