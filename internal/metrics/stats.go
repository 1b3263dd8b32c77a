package metrics

import "time"

// Window accumulates per-step measurements across one training epoch.
type Window struct {
	examples int
	elapsed  time.Duration
	steps    int
	lossSum  float64
	lastLoss float64
}

// Record adds one optimizer step to the window.
func (w *Window) Record(batchSize int, stepTime time.Duration, loss float64) {
	w.examples += batchSize
	w.elapsed += stepTime
	w.steps++
	w.lossSum += loss
	w.lastLoss = loss
}

// Snapshot returns the aggregated epoch metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps, LastLoss: w.lastLoss}
	if w.elapsed > 0 {
		snap.ExamplesPerSec = float64(w.examples) / w.elapsed.Seconds()
	}
	if w.steps > 0 {
		snap.AvgLoss = w.lossSum / float64(w.steps)
		snap.AvgStepMS = (w.elapsed.Seconds() * 1000) / float64(w.steps)
	}

	w.examples = 0
	w.elapsed = 0
	w.steps = 0
	w.lossSum = 0
	return snap
}

// Snapshot represents one epoch's loggable metrics.
type Snapshot struct {
	ExamplesPerSec float64
	AvgStepMS      float64
	AvgLoss        float64
	LastLoss       float64
	Steps          int
}
