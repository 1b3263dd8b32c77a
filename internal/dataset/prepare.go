package dataset

import "fmt"

const maxIntensity = 255.0

// Split is a preprocessed (features, labels) pair ready for training or
// evaluation. X holds one normalized feature vector per example; Y holds the
// matching one-hot label vectors.
type Split struct {
	X [][]float64
	Y [][]float64
}

// Len returns the number of examples in the split.
func (s Split) Len() int { return len(s.X) }

// Normalize maps raw pixel intensities into [0,1] by dividing by 255.
func Normalize(pixels []uint8) []float64 {
	out := make([]float64, len(pixels))
	for i, p := range pixels {
		out[i] = float64(p) / maxIntensity
	}
	return out
}

// OneHot encodes an integer class label as a length-classes vector with a
// single 1 at the label's index.
func OneHot(label uint8, classes int) []float64 {
	v := make([]float64, classes)
	v[int(label)] = 1
	return v
}

// Prepare converts a raw split into normalized features and one-hot labels.
// The same transform must be applied to train and test data so the two stay
// numerically comparable.
func Prepare(raw Raw) (Split, error) {
	stride := raw.Rows * raw.Cols
	if len(raw.Pixels) != raw.Count*stride {
		return Split{}, fmt.Errorf("pixel buffer has %d bytes, want %d", len(raw.Pixels), raw.Count*stride)
	}
	if len(raw.Labels) != raw.Count {
		return Split{}, fmt.Errorf("label buffer has %d entries, want %d", len(raw.Labels), raw.Count)
	}
	split := Split{
		X: make([][]float64, raw.Count),
		Y: make([][]float64, raw.Count),
	}
	for i := 0; i < raw.Count; i++ {
		label := raw.Labels[i]
		if int(label) >= NumClasses {
			return Split{}, fmt.Errorf("example %d: label %d out of range", i, label)
		}
		split.X[i] = Normalize(raw.Pixels[i*stride : (i+1)*stride])
		split.Y[i] = OneHot(label, NumClasses)
	}
	return split, nil
}
