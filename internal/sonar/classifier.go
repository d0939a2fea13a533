package sonar

import "fmt"

// DangerEvent is the one-shot transition marker for a classification cycle.
// It is non-zero only on the cycle where the state actually flips.
type DangerEvent int

const (
	EventExited  DangerEvent = -1
	EventNone    DangerEvent = 0
	EventEntered DangerEvent = 1
)

// ThresholdSource supplies the danger entry threshold each cycle. It reports
// ok=false while no threshold exists yet; the classifier then forces safe
// output regardless of readings.
//
// Two sources cover both deployment styles: BaselineThreshold derives the
// entry point from the learned environment baseline, FixedThreshold pins it
// to a configured absolute distance for installations with a known geometry
// (e.g. a pool wall at a fixed range).
type ThresholdSource interface {
	EnterThreshold() (enter float64, ok bool)
}

// BaselineThreshold derives the entry threshold from a calibrator's learned
// baseline minus a fixed safety margin.
type BaselineThreshold struct {
	Calibrator *BaselineCalibrator
	MarginCM   float64
}

// EnterThreshold implements ThresholdSource.
func (b BaselineThreshold) EnterThreshold() (float64, bool) {
	if !b.Calibrator.IsReady() {
		return 0, false
	}
	return b.Calibrator.Baseline() - b.MarginCM, true
}

// FixedThreshold is an absolute entry threshold in cm, always ready.
type FixedThreshold float64

// EnterThreshold implements ThresholdSource.
func (f FixedThreshold) EnterThreshold() (float64, bool) {
	return float64(f), true
}

// ClassifierConfig holds configuration for the danger classifier.
type ClassifierConfig struct {
	HysteresisCM float64 // Dead band between entry and exit thresholds
	SlopeWidthCM float64 // Distance span over which intensity ramps to zero past exit
	Window       int     // Confirmation ring capacity K
	EnterQuorum  int     // Entries at or below enter required to flip SAFE -> DANGER
	ExitQuorum   int     // Entries at or above exit required to flip DANGER -> SAFE
}

// Validate checks that the classifier configuration is usable.
func (c ClassifierConfig) Validate() error {
	if c.HysteresisCM <= 0 {
		return fmt.Errorf("hysteresis must be > 0, got %v", c.HysteresisCM)
	}
	if c.SlopeWidthCM <= 0 {
		return fmt.Errorf("slope_width must be > 0, got %v", c.SlopeWidthCM)
	}
	if c.Window < 1 {
		return fmt.Errorf("confirmation window must be >= 1, got %d", c.Window)
	}
	if c.EnterQuorum < 1 || c.EnterQuorum > c.Window {
		return fmt.Errorf("enter quorum must be in [1, %d], got %d", c.Window, c.EnterQuorum)
	}
	if c.ExitQuorum < 1 || c.ExitQuorum > c.Window {
		return fmt.Errorf("exit quorum must be in [1, %d], got %d", c.Window, c.ExitQuorum)
	}
	return nil
}

// Assessment is the classifier's per-cycle output.
type Assessment struct {
	InDanger  bool
	Event     DangerEvent
	Intensity float64 // [0, 1]; exactly 0 throughout SAFE
	Ready     bool    // Whether a threshold existed this cycle
	EnterCM   float64 // Entry threshold (0 until ready)
	ExitCM    float64 // Exit threshold (0 until ready)
}

// DangerClassifier is a two-state (SAFE/DANGER) hysteresis machine debounced
// by a K-of-N confirmation window over recent filtered distances.
//
// A transition requires the window to be full and a quorum of its entries on
// the transition side of the relevant threshold, so a single noisy outlier
// cannot flip the state while a sustained change is still confirmed within K
// cycles. The exit threshold sits a hysteresis band above the entry point so
// the obstacle must recede meaningfully before the state clears.
type DangerClassifier struct {
	src ThresholdSource
	cfg ClassifierConfig

	history   *distanceRing
	inDanger  bool
	intensity float64
}

// NewDangerClassifier creates a classifier fed by the given threshold source.
func NewDangerClassifier(src ThresholdSource, cfg ClassifierConfig) (*DangerClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DangerClassifier{
		src:     src,
		cfg:     cfg,
		history: newDistanceRing(cfg.Window),
	}, nil
}

// Observe pushes one filtered distance into the confirmation window and
// evaluates the state machine. Callers must skip Observe entirely on cycles
// with no valid distance; the window and state then stay untouched.
func (c *DangerClassifier) Observe(distance float64) Assessment {
	c.history.push(distance)

	enter, ok := c.src.EnterThreshold()
	if !ok {
		// No safe reference yet: forced-safe output, no premature danger
		// signaling before calibration completes.
		c.inDanger = false
		c.intensity = 0
		return Assessment{}
	}
	exit := enter + c.cfg.HysteresisCM

	event := EventNone
	if !c.inDanger {
		if c.history.full() && c.history.countAtOrBelow(enter) >= c.cfg.EnterQuorum {
			c.inDanger = true
			event = EventEntered
		}
	} else {
		if c.history.full() && c.history.countAtOrAbove(exit) >= c.cfg.ExitQuorum {
			c.inDanger = false
			event = EventExited
		}
	}

	// Open space must read zero danger: intensity is forced to 0 in SAFE even
	// when the distance momentarily dips near the threshold without meeting
	// the quorum.
	if c.inDanger {
		far := exit + c.cfg.SlopeWidthCM
		c.intensity = clamp01(1 - (distance-enter)/(far-enter))
	} else {
		c.intensity = 0
	}

	return Assessment{
		InDanger:  c.inDanger,
		Event:     event,
		Intensity: c.intensity,
		Ready:     true,
		EnterCM:   enter,
		ExitCM:    exit,
	}
}

// State returns the current danger state and intensity without mutating the
// classifier, for reporting cycles where no valid distance arrived.
func (c *DangerClassifier) State() (inDanger bool, intensity float64) {
	return c.inDanger, c.intensity
}

// Reset clears the danger state and the confirmation window. The pipeline
// calls this when baseline calibration completes so borderline readings
// accrued during learning do not leak into post-calibration classification.
func (c *DangerClassifier) Reset() {
	c.inDanger = false
	c.intensity = 0
	c.history.reset()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// distanceRing is a fixed-capacity ring of recent filtered distances: bounded
// array plus head index and count, no allocation after construction.
type distanceRing struct {
	buf   []float64
	head  int
	count int
}

func newDistanceRing(capacity int) *distanceRing {
	return &distanceRing{buf: make([]float64, capacity)}
}

func (r *distanceRing) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *distanceRing) full() bool {
	return r.count == len(r.buf)
}

func (r *distanceRing) reset() {
	r.head = 0
	r.count = 0
}

func (r *distanceRing) countAtOrBelow(limit float64) int {
	n := 0
	for i := 0; i < r.count; i++ {
		if r.buf[i] <= limit {
			n++
		}
	}
	return n
}

func (r *distanceRing) countAtOrAbove(limit float64) int {
	n := 0
	for i := 0; i < r.count; i++ {
		if r.buf[i] >= limit {
			n++
		}
	}
	return n
}
