package ipc

import (
	"errors"
	"log/slog"
)

// Kind classifies a local channel failure.
type Kind string

const (
	// KindConnectFailed means nothing accepted the connection; no primary is running.
	KindConnectFailed               Kind = "connect_failed"
	KindSendFailed                  Kind = "send_failed"
	KindResponseTimeout             Kind = "response_timeout"
	KindReadFailed                  Kind = "read_failed"
	KindPeerDisconnectedPrematurely Kind = "peer_disconnected_prematurely"
	KindBindFailed                  Kind = "bind_failed"
	KindSendResponseFailed          Kind = "send_response_failed"
)

var descriptions = map[Kind]string{
	KindConnectFailed:               "Cannot connect to the local server",
	KindSendFailed:                  "Error sending commands to the local server",
	KindResponseTimeout:             "Timed out waiting for the local server to finish",
	KindReadFailed:                  "Error reading from local socket",
	KindPeerDisconnectedPrematurely: "Local socket has disconnected unexpectedly",
	KindBindFailed:                  "Cannot create a local server",
	KindSendResponseFailed:          "Error writing to local socket",
}

// Description returns the human-readable text for k.
func (k Kind) Description() string {
	if d, ok := descriptions[k]; ok {
		return d
	}
	return string(k)
}

// Error is a classified local channel failure wrapping its cause.
type Error struct {
	Kind        Kind
	Description string
	Err         error
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Description: kind.Description(), Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Description
	}
	return e.Description + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var ipcErr *Error
	if errors.As(err, &ipcErr) {
		return ipcErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// Reporter receives non-fatal failure observations.
type Reporter interface {
	Report(kind Kind, description string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Kind, string)

func (f ReporterFunc) Report(kind Kind, description string) {
	f(kind, description)
}

// LogReporter writes every report to logger at warn level.
func LogReporter(logger *slog.Logger) Reporter {
	return ReporterFunc(func(kind Kind, description string) {
		if logger == nil {
			return
		}
		logger.Warn("ipc failure", "kind", string(kind), "description", description)
	})
}

func report(r Reporter, err *Error) {
	if r == nil || err == nil {
		return
	}
	r.Report(err.Kind, err.Error())
}
