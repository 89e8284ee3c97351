// Package cli parses the soloist command line.
package cli

import (
	"bytes"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

type Command string

const (
	// CommandRun acquires the instance role and forwards or serves Args.
	CommandRun     Command = "run"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

type Parsed struct {
	Command    Command
	ConfigPath string
	Endpoint   string
	// Timeout overrides every channel timeout when positive.
	Timeout  time.Duration
	Args     []string
	ShowHelp bool
	Help     string
}

// Parse resolves args (without the program name) to one command.
func Parse(args []string) (Parsed, error) {
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}

	parsed := Parsed{}
	var out bytes.Buffer
	root := newRootCmd(&parsed)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	if parsed.Command == "" {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		parsed.Help = out.String()
	}
	return parsed, nil
}

// HelpText renders the root command's usage.
func HelpText() string {
	var out bytes.Buffer
	root := newRootCmd(&Parsed{})
	root.SetOut(&out)
	_ = root.Help()
	return out.String()
}

func newRootCmd(parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "soloist [flags] [--] [args...]",
		Short: "Run one instance and forward arguments to it",
		Long: `soloist keeps a single primary instance per endpoint.

The first invocation binds the endpoint and runs until interrupted. Later
invocations forward their arguments to the primary, print its reply, and exit.
Arguments that start with '-' must follow '--'.

Exit status:
  0  arguments forwarded and confirmed, or primary stopped cleanly
  1  startup failure
  2  usage error
  3  arguments forwarded but not confirmed
  4  endpoint could not be bound`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				return nil
			}
			if cmd.Flags().Changed("timeout") && parsed.Timeout <= 0 {
				return errors.New("--timeout must be greater than zero")
			}
			parsed.Command = CommandRun
			parsed.Args = append([]string{}, args...)
			return nil
		},
	}
	root.Flags().SetInterspersed(false)
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file path (default: $SOLOIST_CONFIG, then $XDG_CONFIG_HOME/soloist/config.toml)")
	root.PersistentFlags().StringVar(&parsed.Endpoint, "endpoint", "", "endpoint name or absolute socket path (overrides config)")
	root.Flags().DurationVar(&parsed.Timeout, "timeout", 0, "timeout for each phase of a forward (overrides config)")
	root.Flags().BoolVar(&showVersion, "version", false, "show version")

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandDoctor),
			Short: "Run configuration and endpoint checks",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				parsed.Command = CommandDoctor
				return nil
			},
		},
		&cobra.Command{
			Use:   string(CommandVersion),
			Short: "Print version information",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				parsed.Command = CommandVersion
				return nil
			},
		},
	)

	return root
}
