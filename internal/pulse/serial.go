// Package pulse provides PulseSource implementations for the sonar pipeline:
// a serial-attached transducer bridge for real hardware and a scripted source
// for dev mode and tests. The trigger/echo GPIO roles live on the transducer
// board; this package only speaks its line protocol.
package pulse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/reef-data/sonar.report/internal/monitoring"
	"github.com/reef-data/sonar.report/internal/sonar"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// readSliceTimeout bounds each individual port read so the overall echo
// deadline can be enforced between slices.
const readSliceTimeout = 5 * time.Millisecond

// SerialOptions configures the serial transducer bridge.
type SerialOptions struct {
	BaudRate                int
	EchoTimeout             time.Duration // Max wait for the board's echo reply
	TriggerPulseWidthMicros int           // Pulse width the board drives on its trigger line
}

// DefaultSerialOptions returns the default options for the sonar boards we
// deploy.
func DefaultSerialOptions() SerialOptions {
	return SerialOptions{
		BaudRate:                115200,
		EchoTimeout:             30 * time.Millisecond,
		TriggerPulseWidthMicros: 10,
	}
}

// SerialSource measures echoes through a serial-attached transducer board.
// Each Measure sends one trigger command and reads back a single line: the
// round-trip duration in microseconds, or -1 when the board timed out waiting
// for the echo edge. The read blocks at most EchoTimeout; this is the
// pipeline's sole suspension point and it is strictly bounded.
type SerialSource struct {
	port    SonarPorter
	timeout time.Duration

	mu sync.Mutex
}

// NewSerialSource wraps an already-open port. Used by tests and by
// OpenSerialSource.
func NewSerialSource(port SonarPorter, opts SerialOptions) (*SerialSource, error) {
	s := &SerialSource{port: port, timeout: opts.EchoTimeout}
	if err := s.initialize(opts.TriggerPulseWidthMicros); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSerialSource opens the transducer board at the given serial path and
// pushes the trigger pulse width configuration to it.
func OpenSerialSource(path string, opts SerialOptions) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open sonar board at %s: %w", path, err)
	}
	if err := port.SetReadTimeout(readSliceTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	s, err := NewSerialSource(port, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// initialize pushes device configuration to the board.
func (s *SerialSource) initialize(pulseWidthMicros int) error {
	// W<µs> sets the width of the pulse the board drives on its trigger line.
	if err := s.writeCommand(fmt.Sprintf("W%d", pulseWidthMicros)); err != nil {
		return fmt.Errorf("failed to set trigger pulse width: %w", err)
	}
	return nil
}

func (s *SerialSource) writeCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Measure implements sonar.PulseSource. A board-side echo timeout and a
// malformed reply both yield NoEcho with a nil error; only port failures and
// context cancellation surface as errors.
func (s *SerialSource) Measure(ctx context.Context) (sonar.EchoDuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// T fires one trigger pulse; the board answers with the echo duration.
	if err := s.writeCommand("T"); err != nil {
		return sonar.NoEcho, fmt.Errorf("send trigger: %w", err)
	}

	line, ok, err := s.readLine(ctx)
	if err != nil {
		return sonar.NoEcho, err
	}
	if !ok {
		// Board never answered within the echo timeout.
		return sonar.NoEcho, nil
	}

	v, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		monitoring.Logf("sonar board sent malformed echo line %q", line)
		return sonar.NoEcho, nil
	}
	if v < 0 {
		return sonar.NoEcho, nil
	}
	return sonar.EchoDuration(v), nil
}

// readLine reads one newline-terminated reply, returning ok=false when the
// echo deadline passes with no complete line.
func (s *SerialSource) readLine(ctx context.Context) (string, bool, error) {
	deadline := time.Now().Add(s.timeout)
	buf := make([]byte, 1)
	var line []byte
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return "", false, fmt.Errorf("read echo reply: %w", err)
		}
		if n == 0 {
			// Read slice elapsed with no data.
			if time.Now().After(deadline) {
				return "", false, nil
			}
			continue
		}
		if buf[0] == '\n' {
			return string(line), true, nil
		}
		if buf[0] != '\r' {
			line = append(line, buf[0])
		}
	}
}

// Close closes the underlying serial port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}
