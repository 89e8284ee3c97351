//go:build windows

package ipc

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

const pipePrefix = `\\.\pipe\`

// ResolveEndpoint maps an endpoint name to a named pipe path.
func ResolveEndpoint(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("endpoint name is empty")
	}
	if strings.HasPrefix(strings.ToLower(name), strings.ToLower(pipePrefix)) {
		return name, nil
	}
	if strings.ContainsAny(name, `\/`) {
		return "", errors.New("endpoint name must be a bare name or a full pipe path")
	}
	return pipePrefix + name, nil
}

func listen(endpoint string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		InputBufferSize:  4096,
		OutputBufferSize: 4096,
	}
	return winio.ListenPipe(endpoint, cfg)
}

func dial(ctx context.Context, endpoint string, timeout time.Duration) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return winio.DialPipeContext(dialCtx, endpoint)
}

// lockEndpoint is a no-op: creating the first pipe instance is already atomic.
func lockEndpoint(string) (func(), error) {
	return func() {}, nil
}

// removeStale is a no-op: a named pipe disappears with its last server handle.
func removeStale(string) error {
	return nil
}

func staleEndpoint(string) (bool, error) {
	return false, nil
}

// ListenPipe opens the first instance with FILE_FLAG_FIRST_PIPE_INSTANCE, which
// fails with access denied while another process owns the name.
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.ERROR_ACCESS_DENIED) ||
		errors.Is(err, windows.ERROR_PIPE_BUSY)
}

func isAbsent(err error) bool {
	return errors.Is(err, windows.ERROR_FILE_NOT_FOUND)
}

func isReset(err error) bool {
	return errors.Is(err, windows.ERROR_BROKEN_PIPE) ||
		errors.Is(err, windows.ERROR_NO_DATA) ||
		errors.Is(err, windows.ERROR_PIPE_NOT_CONNECTED)
}
