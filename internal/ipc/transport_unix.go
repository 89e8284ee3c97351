//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ResolveEndpoint maps an endpoint name to a unix socket path.
// Absolute paths are used verbatim; bare names live in XDG_RUNTIME_DIR, or the
// temp dir suffixed with the uid when that is unset.
func ResolveEndpoint(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("endpoint name is empty")
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("endpoint name %q must be a bare name or an absolute path", name)
	}

	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, name+".sock"), nil
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d.sock", name, os.Getuid())), nil
}

func listen(endpoint string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(endpoint), 0o700); err != nil {
		return nil, fmt.Errorf("ensure endpoint dir: %w", err)
	}
	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(endpoint, 0o600)
	return listener, nil
}

func dial(ctx context.Context, endpoint string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "unix", endpoint)
}

// lockEndpoint serializes bind and stale recovery between processes sharing
// endpoint. A socket caught between bind and listen refuses connections and
// would otherwise be probed as stale.
func lockEndpoint(endpoint string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(endpoint), 0o700); err != nil {
		return nil, fmt.Errorf("ensure endpoint dir: %w", err)
	}
	f, err := os.OpenFile(endpoint+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// removeStale unlinks a socket file left behind by a dead owner. Anything
// other than a socket is left alone.
func removeStale(endpoint string) error {
	stale, err := staleEndpoint(endpoint)
	if err != nil || !stale {
		return err
	}
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// staleEndpoint reports whether a socket file exists at endpoint. Any other
// kind of file there is an error.
func staleEndpoint(endpoint string) (bool, error) {
	info, err := os.Lstat(endpoint)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Mode().Type() != os.ModeSocket {
		return false, fmt.Errorf("%s exists and is not a socket", endpoint)
	}
	return true, nil
}

func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}

// isAbsent reports dial failures that mean no listener is attached.
func isAbsent(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.ECONNREFUSED)
}

// isReset reports failures caused by the peer dropping the connection.
func isReset(err error) bool {
	return errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE)
}
