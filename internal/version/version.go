package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Resolved returns Version, or the module version recorded by `go install`
// when no version was stamped at link time.
func Resolved() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

func String() string {
	return "soloist " + Resolved() + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}
