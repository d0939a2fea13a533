// Package sonar implements the acquisition, filtering, calibration and
// classification pipeline for a single ultrasonic range transducer. Raw echo
// timings come in from a PulseSource, get reduced to a robust per-cycle
// distance, smoothed against multipath glitches, compared against a learned
// safe baseline, and finally classified into a debounced danger state with a
// continuous intensity score.
package sonar

import "context"

// EchoDuration is a round-trip echo time in microseconds.
type EchoDuration int64

// NoEcho marks a sub-sample where the transducer timed out waiting for a
// reflection. It is excluded from median selection, never converted to a
// distance.
const NoEcho EchoDuration = -1

// Valid reports whether the duration represents a detected echo.
func (d EchoDuration) Valid() bool {
	return d >= 0
}

// PulseSource produces one raw echo measurement per call. Measure triggers a
// pulse and blocks up to the source's configured timeout waiting for the echo
// edge; a timeout yields NoEcho with a nil error. A non-nil error means the
// underlying device failed, not that no obstacle was seen.
type PulseSource interface {
	Measure(ctx context.Context) (EchoDuration, error)
}
