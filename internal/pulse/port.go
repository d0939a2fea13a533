package pulse

import (
	"io"
	"time"
)

// SonarPorter defines the minimal interface needed from the board's serial
// port. This abstraction enables unit testing without real serial hardware;
// go.bug.st/serial's Port satisfies it.
type SonarPorter interface {
	io.ReadWriter
	io.Closer
	// SetReadTimeout sets the per-read timeout slice for the port.
	SetReadTimeout(timeout time.Duration) error
}
