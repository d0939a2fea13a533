package sonar

import "fmt"

// FilterConfig holds configuration for the stability filter.
type FilterConfig struct {
	Alpha              float64 // EMA smoothing factor in (0, 1]
	DropRejectFraction float64 // Relative drop below the estimate that counts as suspicious
	StrikeThreshold    int     // Consecutive suspicious drops before a drop is accepted as real
}

// Validate checks that the filter configuration is usable.
func (c FilterConfig) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1], got %v", c.Alpha)
	}
	if c.DropRejectFraction < 0 || c.DropRejectFraction >= 1 {
		return fmt.Errorf("drop_reject_fraction must be in [0, 1), got %v", c.DropRejectFraction)
	}
	if c.StrikeThreshold < 1 {
		return fmt.Errorf("strike_threshold must be >= 1, got %d", c.StrikeThreshold)
	}
	return nil
}

// StabilityFilter smooths clamped distances with an exponential moving average
// while absorbing single-sample multipath dropouts.
//
// A reading far below the current estimate is ambiguous: either a multipath
// glitch or a genuinely fast-closing obstacle. The filter counts consecutive
// suspicious drops and only admits the drop once the strike threshold is
// reached. Rejecting outright would freeze the estimate forever on a real
// fast approach, because every subsequent sample also looks like a large drop
// against the stale value; the strike policy breaks that deadlock while still
// swallowing one-off echoes.
type StabilityFilter struct {
	cfg FilterConfig

	initialized bool
	value       float64
	strikes     int
}

// NewStabilityFilter creates a filter with the given configuration.
func NewStabilityFilter(cfg FilterConfig) (*StabilityFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StabilityFilter{cfg: cfg}, nil
}

// Update feeds one valid clamped distance into the filter and returns the
// new estimate. Callers must skip Update entirely on cycles with no valid
// ranging result; the estimate and strike counter then stay untouched.
func (f *StabilityFilter) Update(distance float64) float64 {
	if !f.initialized {
		f.initialized = true
		f.value = distance
		f.strikes = 0
		return f.value
	}

	rejectLimit := f.value * (1 - f.cfg.DropRejectFraction)
	if distance < rejectLimit {
		f.strikes++
		if f.strikes < f.cfg.StrikeThreshold {
			// Transient glitch until proven otherwise.
			return f.value
		}
		// Clamp so a long real approach cannot wind the counter up.
		f.strikes = f.cfg.StrikeThreshold
	} else {
		f.strikes = 0
	}

	f.value = f.cfg.Alpha*distance + (1-f.cfg.Alpha)*f.value
	return f.value
}

// Value returns the current estimate and whether the filter has been
// initialized by at least one valid distance.
func (f *StabilityFilter) Value() (float64, bool) {
	return f.value, f.initialized
}

// Strikes returns the current suspicious-drop streak length.
func (f *StabilityFilter) Strikes() int {
	return f.strikes
}

// Reset returns the filter to its uninitialized state.
func (f *StabilityFilter) Reset() {
	f.initialized = false
	f.value = 0
	f.strikes = 0
}
