package sonar

import (
	"sync"
	"time"

	"github.com/reef-data/sonar.report/internal/monitoring"
	"github.com/reef-data/sonar.report/internal/timeutil"
)

// CycleStats tracks pipeline counters with thread-safe operations. The cycle
// loop adds to it and a periodic reporter drains it.
type CycleStats struct {
	clock timeutil.Clock

	mu            sync.Mutex
	cycleCount    int64
	invalidCount  int64
	noEchoCount   int64
	enteredEvents int64
	exitedEvents  int64
	lastReset     time.Time
}

// NewCycleStats creates a new CycleStats instance.
func NewCycleStats() *CycleStats {
	return NewCycleStatsWithClock(timeutil.RealClock{})
}

// NewCycleStatsWithClock creates a CycleStats using the given clock for rate
// computations. Tests use a mock clock to make elapsed time deterministic.
func NewCycleStatsWithClock(clock timeutil.Clock) *CycleStats {
	return &CycleStats{clock: clock, lastReset: clock.Now()}
}

// AddCycle records one cycle's outcome.
func (cs *CycleStats) AddCycle(rec CycleRecord) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cycleCount++
	if !rec.Valid {
		cs.invalidCount++
	}
	cs.noEchoCount += int64(rec.NoEchoSubsamples)
	switch rec.Event {
	case EventEntered:
		cs.enteredEvents++
	case EventExited:
		cs.exitedEvents++
	}
}

// GetAndReset returns current counters and resets them.
func (cs *CycleStats) GetAndReset() (cycles, invalid, noEcho, entered, exited int64, duration time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := cs.clock.Now()
	duration = now.Sub(cs.lastReset)
	cycles = cs.cycleCount
	invalid = cs.invalidCount
	noEcho = cs.noEchoCount
	entered = cs.enteredEvents
	exited = cs.exitedEvents

	cs.cycleCount = 0
	cs.invalidCount = 0
	cs.noEchoCount = 0
	cs.enteredEvents = 0
	cs.exitedEvents = 0
	cs.lastReset = now

	return
}

// LogStats logs formatted counters since the previous reset.
func (cs *CycleStats) LogStats() {
	cycles, invalid, noEcho, entered, exited, duration := cs.GetAndReset()
	if cycles == 0 {
		return
	}
	cyclesPerSec := float64(cycles) / duration.Seconds()
	monitoring.Logf("Sonar stats: %.1f cycles/sec, %d invalid, %d no-echo subsamples, %d entered, %d exited",
		cyclesPerSec, invalid, noEcho, entered, exited)
}
