package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/soloist/internal/arbiter"
	"github.com/rbright/soloist/internal/cli"
	"github.com/rbright/soloist/internal/config"
	"github.com/rbright/soloist/internal/doctor"
	"github.com/rbright/soloist/internal/ipc"
	"github.com/rbright/soloist/internal/logging"
	"github.com/rbright/soloist/internal/report"
	"github.com/rbright/soloist/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText())
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, parsed.Help)
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if parsed.Endpoint != "" {
		cfgLoaded.Config.Endpoint = parsed.Endpoint
	}
	if parsed.Timeout > 0 {
		cfgLoaded.Config.Timeouts = config.TimeoutConfig{
			Connect:  parsed.Timeout,
			Send:     parsed.Timeout,
			Response: parsed.Timeout,
		}
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		// A missing file is normal for the forwarding path; keep it out of the terminal.
		if !cfgLoaded.Exists && parsed.Command == cli.CommandRun {
			logger.Debug("config warning", "line", w.Line, "message", w.Message)
			continue
		}
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"endpoint", cfgLoaded.Config.Endpoint,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, parsed.Args, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, rawArgs []string, logger *slog.Logger) int {
	endpoint, err := ipc.ResolveEndpoint(cfg.Endpoint)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	args, dropped := dropEmptyArgs(rawArgs)
	if dropped > 0 {
		fmt.Fprintf(r.Stderr, "warning: ignoring %d empty argument(s)\n", dropped)
		logger.Warn("empty arguments dropped", "count", dropped)
	}

	sink := report.New(logger)
	h := &host{out: r.Stdout, logger: logger}

	outcome, err := arbiter.Acquire(ctx, arbiter.Options{
		Endpoint:        endpoint,
		Args:            args,
		ConnectTimeout:  cfg.Timeouts.Connect,
		SendTimeout:     cfg.Timeouts.Send,
		ResponseTimeout: cfg.Timeouts.Response,
		Handler:         h,
		Reporter:        sink,
		Logger:          logger,
		Server: ipc.ServerOptions{
			Observer:      sink,
			MaxFrameBytes: cfg.Server.MaxFrameBytes,
		},
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("acquire failed", "error", err.Error())
		return 1
	}

	if code, exit := outcome.ExitCode(); exit {
		switch {
		case outcome.Role == arbiter.RoleErrorCannotBind:
			if outcome.PeerErr != nil {
				fmt.Fprintf(r.Stderr, "warning: ignored unresponsive instance: %v\n", outcome.PeerErr)
			}
			fmt.Fprintf(r.Stderr, "error: %v\n", outcome.Err)
		case !outcome.Confirmed:
			_, _ = r.Stdout.Write(outcome.Response)
			fmt.Fprintf(r.Stderr, "warning: arguments forwarded but not confirmed: %v\n", outcome.Err)
		default:
			_, _ = r.Stdout.Write(outcome.Response)
		}
		logger.Info("command complete", "role", string(outcome.Role), "exit_code", code)
		return code
	}

	return r.runPrimary(ctx, outcome, args, h, sink, cfg, logger)
}

func (r Runner) runPrimary(
	ctx context.Context,
	outcome arbiter.Outcome,
	args []string,
	h *host,
	sink *report.Sink,
	cfg config.Config,
	logger *slog.Logger,
) int {
	if outcome.Err != nil {
		fmt.Fprintf(r.Stderr, "warning: ignored unresponsive instance: %v\n", outcome.Err)
	}

	started := time.Now()
	h.launch(args)

	serveErr := outcome.Server.Serve(ctx)
	_ = outcome.Server.Close()

	logger.Info("ipc totals",
		"role", string(outcome.Role),
		"uptime_ms", time.Since(started).Milliseconds(),
		"summary", sink.Summary(),
	)
	if cfg.Server.MetricsFile != "" {
		if err := sink.WriteTextfile(cfg.Server.MetricsFile); err != nil {
			logger.Warn("metrics export failed", "path", cfg.Server.MetricsFile, "error", err.Error())
		}
	}

	if serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serveErr)
		return 1
	}
	return 0
}

// dropEmptyArgs removes arguments the wire format cannot carry.
func dropEmptyArgs(args []string) ([]string, int) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "" {
			continue
		}
		out = append(out, arg)
	}
	return out, len(args) - len(out)
}

// host is the primary instance's view of argument lists: its own launch
// arguments and every list forwarded by a later invocation.
type host struct {
	mu       sync.Mutex
	out      io.Writer
	logger   *slog.Logger
	received int
}

var _ ipc.Handler = (*host)(nil)

func (h *host) launch(args []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Info("primary instance started", "args", args)
	fmt.Fprintf(h.out, "started: %s\n", quoteArgs(args))
}

// OnNewInstanceArgs implements ipc.Handler.
func (h *host) OnNewInstanceArgs(_ context.Context, args []string) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.received++
	h.logger.Info("arguments received from new instance", "seq", h.received, "args", args)
	fmt.Fprintf(h.out, "received: %s\n", quoteArgs(args))
	return []byte(fmt.Sprintf("received %d argument(s)\n", len(args)))
}

func quoteArgs(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, fmt.Sprintf("%q", arg))
	}
	return "[" + strings.Join(quoted, " ") + "]"
}
