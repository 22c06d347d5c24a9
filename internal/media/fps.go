package media

const (
	// DefaultFPS seeds the estimate before any frame has been seen.
	DefaultFPS = 24.0
	// DefaultFPSAlpha is the EMA weight given to each new sample.
	DefaultFPSAlpha = 0.1

	minDeltaPTS = 1e-6
)

// FPSEstimator is an exponentially weighted moving average of the frame
// rate derived from PTS deltas. It is a display hint, never a clock.
type FPSEstimator struct {
	Seed  float64
	Alpha float64
	value float64
}

// NewFPSEstimator returns an estimator seeded with seed. Non-positive
// arguments fall back to the defaults.
func NewFPSEstimator(seed, alpha float64) *FPSEstimator {
	if seed <= 0 {
		seed = DefaultFPS
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultFPSAlpha
	}
	return &FPSEstimator{Seed: seed, Alpha: alpha, value: seed}
}

// Update folds one PTS delta into the estimate and returns the new value.
// Deltas are floored so equal or non-monotonic PTS values cannot blow up.
func (e *FPSEstimator) Update(deltaPTS float64) float64 {
	if deltaPTS < minDeltaPTS {
		deltaPTS = minDeltaPTS
	}
	e.value = (1-e.Alpha)*e.value + e.Alpha*(1/deltaPTS)
	return e.value
}

// Value returns the current estimate.
func (e *FPSEstimator) Value() float64 {
	return e.value
}

// Reset returns the estimate to its seed.
func (e *FPSEstimator) Reset() {
	e.value = e.Seed
}
