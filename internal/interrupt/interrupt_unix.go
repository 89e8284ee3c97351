//go:build !windows

package interrupt

import (
	"os"

	"golang.org/x/sys/unix"
)

// SIGHUP covers a closed controlling terminal.
var signals = []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP}
