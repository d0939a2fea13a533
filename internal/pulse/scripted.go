package pulse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/reef-data/sonar.report/internal/sonar"
)

// ScriptedSource replays a fixed sequence of echo durations. It backs dev
// mode (replaying a fixture profile instead of hardware) and tests.
type ScriptedSource struct {
	mu        sync.Mutex
	durations []sonar.EchoDuration
	idx       int
	loop      bool
}

// NewScriptedSource creates a source replaying the given durations. With
// loop=true the sequence wraps around; otherwise an exhausted source keeps
// returning NoEcho.
func NewScriptedSource(durations []sonar.EchoDuration, loop bool) *ScriptedSource {
	return &ScriptedSource{durations: durations, loop: loop}
}

// Measure implements sonar.PulseSource.
func (s *ScriptedSource) Measure(ctx context.Context) (sonar.EchoDuration, error) {
	if err := ctx.Err(); err != nil {
		return sonar.NoEcho, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.durations) {
		if !s.loop || len(s.durations) == 0 {
			return sonar.NoEcho, nil
		}
		s.idx = 0
	}
	d := s.durations[s.idx]
	s.idx++
	return d, nil
}

// ParseProfile parses a fixture profile: one echo duration in microseconds
// per line, -1 for a pulse timeout. Blank lines and lines starting with #
// are skipped.
func ParseProfile(data []byte) ([]sonar.EchoDuration, error) {
	var out []sonar.EchoDuration
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("profile line %d: %w", i+1, err)
		}
		if v < 0 {
			out = append(out, sonar.NoEcho)
		} else {
			out = append(out, sonar.EchoDuration(v))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("profile contains no samples")
	}
	return out, nil
}
