package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	apperrors "github.com/jrsteele09/portscribe/internal/errors"
	"github.com/jrsteele09/portscribe/runner"
)

const appName = "portscribe"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitPropagation = 3
)

type options struct {
	noHeadless bool
	quiet      bool
}

type runFunc func(ctx context.Context, opts options) error

// usageError marks bad flags or arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newRootCmd(run runFunc) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Renew the Windscribe port-forward lease and push the port to qBittorrent",
		Long: `portscribe logs in to the Windscribe account portal, renews the ephemeral
port-forward lease when it has less than a day left, and sets qBittorrent's
listen port to the forwarded port.

Credentials are read from the environment or a .env file in the working
directory. The saved session (cookies.json) and the run lock (lock) also live
there. Run it from a periodic job; a second run while one is active fails.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		// Errors are reported by execute, which knows which ones need usage.
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	cmd.Flags().BoolVar(&opts.noHeadless, "no-headless", false, "show the browser window instead of running headless")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	return cmd
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, out io.Writer, run runFunc) int {
	cmd := newRootCmd(run)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)

	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	if code == exitUsage {
		fmt.Fprintf(out, "Error: %v\n\n%s", err, cmd.UsageString())
	}
	return code
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var usage *usageError
	if apperrors.As(err, &usage) {
		return exitUsage
	}
	var propagation *runner.PropagationError
	if apperrors.As(err, &propagation) {
		return exitPropagation
	}
	return exitFailure
}
