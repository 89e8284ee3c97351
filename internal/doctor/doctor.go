// Package doctor runs readiness diagnostics for config and the instance endpoint.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rbright/soloist/internal/config"
	"github.com/rbright/soloist/internal/ipc"
)

const probeTimeout = 500 * time.Millisecond

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config and endpoint checks. It never removes or binds anything.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	endpoint, err := ipc.ResolveEndpoint(cfg.Config.Endpoint)
	if err != nil {
		checks = append(checks, Check{Name: "endpoint", Pass: false, Message: err.Error()})
		return Report{Checks: checks}
	}
	checks = append(checks, Check{Name: "endpoint", Pass: true, Message: endpoint})

	if runtime.GOOS != "windows" {
		checks = append(checks, checkDirWritable(filepath.Dir(endpoint)))
	}
	checks = append(checks, checkEndpointState(ctx, endpoint))

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 && cfg.Exists {
		message += fmt.Sprintf(" (%d warning(s))", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkDirWritable verifies the endpoint directory accepts new files.
func checkDirWritable(dir string) Check {
	name := "endpoint.dir"
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s does not exist yet; created on first start", dir)}
	}
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not a directory", dir)}
	}

	f, err := os.CreateTemp(dir, ".soloist-doctor-*")
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is writable", dir)}
}

// checkEndpointState reports whether a primary instance currently owns endpoint.
func checkEndpointState(ctx context.Context, endpoint string) Check {
	name := "endpoint.state"
	state, err := ipc.Probe(ctx, endpoint, probeTimeout)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	switch state {
	case ipc.EndpointLive:
		return Check{Name: name, Pass: true, Message: "live; a primary instance is running"}
	case ipc.EndpointStale:
		return Check{Name: name, Pass: true, Message: "stale; the next primary instance will replace it"}
	default:
		return Check{Name: name, Pass: true, Message: "free; no instance is running"}
	}
}
