//go:build windows

package interrupt

import (
	"os"
	"syscall"
)

// The runtime reports Ctrl+C and Ctrl+Break as os.Interrupt and console
// close, logoff, and shutdown events as SIGTERM.
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
