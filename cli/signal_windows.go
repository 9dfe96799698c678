//go:build windows

package cli

import (
	"os"
)

var StopSignals = []os.Signal{
	os.Interrupt,
}
