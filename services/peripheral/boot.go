package peripheral

import (
	"io"
	"time"
)

// DefaultRestartDelay gives the console time to drain before a reset.
const DefaultRestartDelay = 500 * time.Millisecond

// Boot runs setup. On failure it writes the cause to console, waits delay and
// calls restart, which on hardware does not return. Boot reports whether
// setup succeeded.
func Boot(console io.Writer, setup func() error, delay time.Duration, restart func()) bool {
	err := setup()
	if err == nil {
		return true
	}
	if console != nil {
		_, _ = io.WriteString(console, "boot: "+err.Error()+", restarting\r\n")
	}
	time.Sleep(delay)
	restart()
	return false
}
