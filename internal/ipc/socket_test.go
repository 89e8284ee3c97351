//go:build !windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/soloist/internal/fsm"
	"github.com/stretchr/testify/require"
)

func TestStartRecoversStaleEndpoint(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "solo.sock")
	leaveStaleSocket(t, socketPath)

	state, err := Probe(context.Background(), socketPath, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, EndpointStale, state)

	reports := &reportCollector{}
	server := NewServer(socketPath, nil, ServerOptions{Reporter: reports})
	require.NoError(t, server.Start(context.Background()))
	defer server.Close()

	require.Equal(t, fsm.StateListening, server.State())
	require.Empty(t, reports.Kinds())

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.ModeSocket, info.Mode().Type())
}

func TestStartLeavesNonSocketFileInPlace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

	_, err := Probe(context.Background(), path, 50*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a socket")

	reports := &reportCollector{}
	server := NewServer(path, nil, ServerOptions{Reporter: reports})
	err = server.Start(context.Background())
	require.Error(t, err)
	require.True(t, IsKind(err, KindBindFailed), "err = %v", err)
	require.Equal(t, []Kind{KindBindFailed}, reports.Kinds())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(data))
}

func TestStartRefusesLiveEndpoint(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "solo.sock")
	handler := &recordingHandler{response: []byte("still here")}
	startTestServer(t, socketPath, handler, ServerOptions{})

	reports := &reportCollector{}
	second := NewServer(socketPath, nil, ServerOptions{Reporter: reports})
	err := second.Start(context.Background())
	require.Error(t, err)
	require.True(t, IsKind(err, KindBindFailed), "err = %v", err)
	require.Contains(t, err.Error(), "owned by a running instance")
	require.Equal(t, []Kind{KindBindFailed}, reports.Kinds())

	result, err := Send(context.Background(), socketPath, []string{"ping"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "still here", string(result.Response))
}

func TestStartFailsWithoutRetryOnOtherErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	server := NewServer(filepath.Join(blocker, "solo.sock"), nil, ServerOptions{})
	err := server.Start(context.Background())
	require.Error(t, err)
	require.True(t, IsKind(err, KindBindFailed), "err = %v", err)
	require.NotContains(t, err.Error(), "stale cleanup")
}

func TestCloseReleasesEndpoint(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "solo.sock")
	server := NewServer(socketPath, nil, ServerOptions{})
	require.NoError(t, server.Start(context.Background()))

	state, err := Probe(context.Background(), socketPath, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, EndpointLive, state)

	require.NoError(t, server.Close())
	require.NoError(t, server.Close())
	require.Equal(t, fsm.StateIdle, server.State())

	state, err = Probe(context.Background(), socketPath, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, EndpointFree, state)
}

func TestResolveEndpointUsesRuntimeDir(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	path, err := ResolveEndpoint("soloist")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(runtimeDir, "soloist.sock"), path)
}

func TestResolveEndpointFallsBackToTempDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	path, err := ResolveEndpoint("soloist")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(os.TempDir(), fmt.Sprintf("soloist-%d.sock", os.Getuid())), path)
}

func TestResolveEndpointValidation(t *testing.T) {
	path, err := ResolveEndpoint("/run/custom/app.sock")
	require.NoError(t, err)
	require.Equal(t, "/run/custom/app.sock", path)

	_, err = ResolveEndpoint("  ")
	require.Error(t, err)

	_, err = ResolveEndpoint("nested/name")
	require.Error(t, err)
}

// leaveStaleSocket binds and closes a listener at path without unlinking it.
func leaveStaleSocket(t *testing.T, path string) {
	t.Helper()

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	listener.SetUnlinkOnClose(false)
	require.NoError(t, listener.Close())

	info, err := os.Lstat(path)
	require.NoError(t, err)
	require.Equal(t, os.ModeSocket, info.Mode().Type())
}
