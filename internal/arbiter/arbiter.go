// Package arbiter decides at startup whether this process is the primary
// instance or forwards its arguments to one that is already running.
package arbiter

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/soloist/internal/ipc"
)

// Role is the once-per-process outcome of Acquire.
type Role string

const (
	RolePrimaryNew              Role = "primary-new"
	RolePrimaryAfterIgnoredPeer Role = "primary-after-ignored-peer"
	RoleSecondaryForwarded      Role = "secondary-forwarded"
	RoleErrorCannotBind         Role = "error-cannot-bind"
)

// Primary reports whether the process owns the endpoint and should keep running.
func (r Role) Primary() bool {
	return r == RolePrimaryNew || r == RolePrimaryAfterIgnoredPeer
}

// Process exit statuses for roles that end the process immediately.
const (
	ExitForwarded   = 0
	ExitUnconfirmed = 3
	ExitCannotBind  = 4
)

// Outcome is the result of one Acquire call.
type Outcome struct {
	Role Role
	// Response is the primary's raw reply for RoleSecondaryForwarded.
	Response []byte
	// Confirmed is true when the primary closed the exchange cleanly.
	Confirmed bool
	// Err holds the failure behind an unconfirmed forward, an ignored peer, or a bind failure.
	Err error
	// PeerErr is the ignored peer's send failure when a later bind also failed.
	PeerErr error
	// Server is bound but not yet serving for primary roles; the caller runs Serve.
	Server *ipc.Server
}

// ExitCode returns the status to exit with; ok is false for primary roles.
func (o Outcome) ExitCode() (code int, ok bool) {
	switch o.Role {
	case RoleSecondaryForwarded:
		if o.Confirmed {
			return ExitForwarded, true
		}
		return ExitUnconfirmed, true
	case RoleErrorCannotBind:
		return ExitCannotBind, true
	default:
		return 0, false
	}
}

// Options configures an Arbiter.
type Options struct {
	// Endpoint is a resolved socket path or pipe name.
	Endpoint string
	Args     []string

	ConnectTimeout  time.Duration
	SendTimeout     time.Duration
	ResponseTimeout time.Duration

	Handler  ipc.Handler
	Reporter ipc.Reporter
	Logger   *slog.Logger
	Server   ipc.ServerOptions
}

// Arbiter runs the client-first, server-second startup decision.
type Arbiter struct {
	opts   Options
	logger *slog.Logger
	send   func(context.Context, []string) (ipc.Result, error)
}

// New builds an Arbiter. Zero timeouts fall back to one second.
func New(opts Options) *Arbiter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := ipc.NewClient(opts.Endpoint, time.Second)
	if opts.ConnectTimeout > 0 {
		client.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.SendTimeout > 0 {
		client.SendTimeout = opts.SendTimeout
	}
	if opts.ResponseTimeout > 0 {
		client.ResponseTimeout = opts.ResponseTimeout
	}

	return &Arbiter{opts: opts, logger: logger, send: client.Send}
}

// Acquire runs New(opts).Acquire.
func Acquire(ctx context.Context, opts Options) (Outcome, error) {
	return New(opts).Acquire(ctx)
}

// Acquire tries to forward the arguments first and binds the endpoint only
// when no primary took them. The returned error is reserved for arguments
// that cannot be encoded; every channel failure is described by the Outcome.
func (a *Arbiter) Acquire(ctx context.Context) (Outcome, error) {
	result, err := a.send(ctx, a.opts.Args)
	role := RolePrimaryNew
	var peerErr error

	switch {
	case err == nil:
		a.logger.Info("forwarded arguments to running instance",
			"endpoint", a.opts.Endpoint,
			"argc", len(a.opts.Args),
			"response_bytes", len(result.Response),
		)
		return Outcome{Role: RoleSecondaryForwarded, Response: result.Response, Confirmed: true}, nil
	case ipc.IsKind(err, ipc.KindConnectFailed):
		a.logger.Debug("no running instance found", "endpoint", a.opts.Endpoint)
	case ipc.IsKind(err, ipc.KindSendFailed):
		// A listener accepted but the transfer broke; it is ignored and this
		// process still tries to bind, even though that peer may be alive.
		a.reportErr(err)
		a.logger.Warn("ignoring unresponsive peer", "endpoint", a.opts.Endpoint, "error", err.Error())
		role = RolePrimaryAfterIgnoredPeer
		peerErr = err
	default:
		if _, ok := ipc.KindOf(err); !ok {
			return Outcome{}, err
		}
		a.reportErr(err)
		a.logger.Warn("forward not confirmed", "endpoint", a.opts.Endpoint, "error", err.Error())
		return Outcome{Role: RoleSecondaryForwarded, Response: result.Response, Err: err}, nil
	}

	serverOpts := a.opts.Server
	if serverOpts.Reporter == nil {
		serverOpts.Reporter = a.opts.Reporter
	}
	if serverOpts.Logger == nil {
		serverOpts.Logger = a.logger
	}

	server := ipc.NewServer(a.opts.Endpoint, a.opts.Handler, serverOpts)
	if err := server.Start(ctx); err != nil {
		a.logger.Error("cannot bind endpoint", "endpoint", a.opts.Endpoint, "error", err.Error())
		return Outcome{Role: RoleErrorCannotBind, Err: err, PeerErr: peerErr}, nil
	}

	a.logger.Info("running as primary instance", "endpoint", a.opts.Endpoint, "role", string(role))
	return Outcome{Role: role, Server: server, Err: peerErr}, nil
}

func (a *Arbiter) reportErr(err error) {
	if a.opts.Reporter == nil {
		return
	}
	kind, _ := ipc.KindOf(err)
	a.opts.Reporter.Report(kind, err.Error())
}
