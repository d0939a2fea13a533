package sonar

import "fmt"

// CycleRecord is one cycle's measurement and classification state, emitted
// once per cycle for logging and downstream consumption.
type CycleRecord struct {
	TimeMs     int64   // Milliseconds since pipeline start
	EchoMicros int64   // Median echo duration, or -1 when the cycle was invalid
	Valid      bool    // False when every sub-sample was rejected or timed out
	RawCM      float64 // Converted clamped distance (0 on invalid cycles)
	FilteredCM float64 // Stability filter estimate (last known good on invalid cycles)
	BaselineCM float64 // Learned baseline (0.0 until calibration is ready)
	EnterCM    float64 // Danger entry threshold (0.0 until ready)
	ExitCM     float64 // Danger exit threshold (0.0 until ready)
	Intensity  float64 // Danger intensity in [0, 1]
	Event      DangerEvent
	InDanger   bool

	// NoEchoSubsamples counts pulse timeouts within the cycle, for stats.
	NoEchoSubsamples int
	// CalibrationCompleted is true only on the single cycle where the
	// baseline became ready.
	CalibrationCompleted bool
}

// CSVHeader matches the field order of CSVLine.
const CSVHeader = "time_ms,echo_us,valid,raw_cm,filtered_cm,baseline_cm,enter_cm,exit_cm,intensity,event"

// CSVLine serializes the record as one comma-separated telemetry line.
// Invalid cycles carry the -1 echo sentinel and valid=0 with all classifier
// state frozen at its prior values.
func (r CycleRecord) CSVLine() string {
	valid := 0
	if r.Valid {
		valid = 1
	}
	return fmt.Sprintf("%d,%d,%d,%.1f,%.1f,%.1f,%.1f,%.1f,%.3f,%d",
		r.TimeMs, r.EchoMicros, valid, r.RawCM, r.FilteredCM,
		r.BaselineCM, r.EnterCM, r.ExitCM, r.Intensity, r.Event)
}
