//go:build !windows

package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/soloist/internal/ipc"
	"github.com/stretchr/testify/require"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "soloist")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownFlag(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--definitely-not-a-flag"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown flag")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerPrimaryReceivesForwardedArgs(t *testing.T) {
	paths := setupRunnerEnv(t)
	endpoint := filepath.Join(paths.runtimeDir, "soloist.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var primaryOut, primaryErr bytes.Buffer
	primaryDone := make(chan int, 1)
	go func() {
		runner := Runner{Stdout: &primaryOut, Stderr: &primaryErr}
		primaryDone <- runner.Execute(ctx, []string{"--config", paths.configPath, "first.txt"})
	}()
	waitForState(t, endpoint, ipc.EndpointLive)

	var stdout, stderr bytes.Buffer
	secondary := Runner{Stdout: &stdout, Stderr: &stderr}
	exitCode := secondary.Execute(context.Background(), []string{"--config", paths.configPath, "--", "--open", "file name.txt"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "received 2 argument(s)\n", stdout.String())
	require.Empty(t, stderr.String())

	cancel()
	select {
	case code := <-primaryDone:
		require.Equal(t, 0, code, primaryErr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("primary did not stop after cancellation")
	}

	require.Contains(t, primaryOut.String(), `started: ["first.txt"]`)
	require.Contains(t, primaryOut.String(), `received: ["--open" "file name.txt"]`)
	waitForState(t, endpoint, ipc.EndpointFree)

	logData, err := os.ReadFile(filepath.Join(paths.stateDir, "soloist", "log.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(logData), `"msg":"ipc totals"`)
	require.Contains(t, string(logData), "dispatched=1")
}

func TestRunnerPrimaryWritesMetricsFile(t *testing.T) {
	paths := setupRunnerEnv(t)
	endpoint := filepath.Join(paths.runtimeDir, "soloist.sock")
	metricsPath := filepath.Join(t.TempDir(), "soloist.prom")
	require.NoError(t, os.WriteFile(paths.configPath, []byte("[server]\nmetrics_file = \""+metricsPath+"\"\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		runner := Runner{Stdout: io.Discard, Stderr: io.Discard}
		done <- runner.Execute(ctx, []string{"--config", paths.configPath})
	}()
	waitForState(t, endpoint, ipc.EndpointLive)
	cancel()
	require.Equal(t, 0, <-done)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "soloist_ipc_dispatched_total 0")
}

func TestRunnerUnconfirmedForwardExitsThree(t *testing.T) {
	paths := setupRunnerEnv(t)
	endpoint := filepath.Join(paths.runtimeDir, "soloist.sock")

	listener, err := net.Listen("unix", endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		var one [1]byte
		_, _ = io.ReadFull(conn, one[:])
		_ = conn.Close()
	}()

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "payload"})
	require.Equal(t, 3, exitCode)
	require.Contains(t, stderr.String(), "not confirmed")
}

func TestRunnerInvalidEndpointFails(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "--endpoint", "nested/name"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerConfigErrorFails(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte("endpoint = = 1\n"), 0o600))

	var stdout, stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "parse config")
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 0, exitCode, stdout.String())
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "endpoint.state: free")
}

func TestDropEmptyArgs(t *testing.T) {
	args, dropped := dropEmptyArgs([]string{"a", "", "b", ""})
	require.Equal(t, []string{"a", "b"}, args)
	require.Equal(t, 2, dropped)

	args, dropped = dropEmptyArgs(nil)
	require.Empty(t, args)
	require.Zero(t, dropped)
}

func TestHostRepliesWithAcknowledgement(t *testing.T) {
	var out bytes.Buffer
	h := &host{out: &out, logger: discardLogger()}

	response := h.OnNewInstanceArgs(context.Background(), []string{"x"})
	require.Equal(t, "received 1 argument(s)\n", string(response))
	require.Equal(t, "received: [\"x\"]\n", out.String())

	response = h.OnNewInstanceArgs(context.Background(), []string{})
	require.Equal(t, "received 0 argument(s)\n", string(response))
	require.Equal(t, 2, h.received)
}

type runnerPaths struct {
	configPath string
	runtimeDir string
	stateDir   string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	xdgStateHome := t.TempDir()
	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv("SOLOIST_LOG_LEVEL", "")
	t.Setenv("SOLOIST_CONFIG", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("\n"), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir, stateDir: xdgStateHome}
}

func waitForState(t *testing.T, endpoint string, want ipc.EndpointState) {
	t.Helper()
	require.Eventually(t, func() bool {
		state, err := ipc.Probe(context.Background(), endpoint, 50*time.Millisecond)
		return err == nil && state == want
	}, 5*time.Second, 20*time.Millisecond)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
