//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// StopSignals end the server gracefully: open sessions are closed before
// the process exits.
var StopSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGHUP,
}
