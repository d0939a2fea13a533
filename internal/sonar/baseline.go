package sonar

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BaselineCalibrator learns the safe reference distance for the current
// environment. During the learning phase every cycle with a valid filtered
// distance is collected into a fixed-capacity buffer; once full, the baseline
// is the lower median of the buffer and readiness flips permanently true.
//
// The buffer is single-use per process run: no samples are accepted after
// readiness and there is no re-calibration trigger, so thresholds derived
// from the baseline go stale if the environment's safe reference drifts over
// a long run. Known limitation.
type BaselineCalibrator struct {
	samples  []float64
	capacity int
	ready    bool
	baseline float64
}

// NewBaselineCalibrator creates a calibrator that learns from the given
// number of filtered distances.
func NewBaselineCalibrator(samples int) (*BaselineCalibrator, error) {
	if samples < 1 {
		return nil, fmt.Errorf("baseline sample count must be >= 1, got %d", samples)
	}
	return &BaselineCalibrator{
		samples:  make([]float64, 0, samples),
		capacity: samples,
	}, nil
}

// Observe records one filtered distance during the learning phase. Calls
// after readiness are no-ops.
func (b *BaselineCalibrator) Observe(filtered float64) {
	if b.ready {
		return
	}
	b.samples = append(b.samples, filtered)
	if len(b.samples) < b.capacity {
		return
	}

	// Lower median via the empirical 0.5-quantile: robust to the occasional
	// outlier distance admitted despite filtering, and always an observed
	// sample so threshold derivation is reproducible.
	sorted := make([]float64, len(b.samples))
	copy(sorted, b.samples)
	sort.Float64s(sorted)
	b.baseline = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	b.ready = true
}

// IsReady reports whether the learning phase has completed.
func (b *BaselineCalibrator) IsReady() bool {
	return b.ready
}

// Baseline returns the learned safe reference distance. Only meaningful once
// IsReady returns true.
func (b *BaselineCalibrator) Baseline() float64 {
	return b.baseline
}

// Progress returns how many samples have been collected and the target count.
func (b *BaselineCalibrator) Progress() (collected, target int) {
	return len(b.samples), b.capacity
}
