package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	exitCode := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

// run is the main entry point for the CLI, separated for testing.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// cobra falls back to os.Args on nil
	if args == nil {
		args = []string{}
	}
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, FmtError, err)
		return exitCode(err)
	}
	return ExitCodeSuccess
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           CLIName,
		Short:         CLIDescription,
		Long:          CLILong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	root.AddCommand(
		newRenderCmd(),
		newScriptCmd(),
		newVarsCmd(),
		newChatCmd(),
		newRunCmd(),
		newVersionCmd(),
	)
	return root
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: ExitCodeUsageError, err: err} }

func inputError(msg string, err error) error {
	return &exitError{code: ExitCodeInputError, err: fmt.Errorf(FmtErrorWithCause, msg, err)}
}

func runError(msg string, err error) error {
	return &exitError{code: ExitCodeError, err: fmt.Errorf(FmtErrorWithCause, msg, err)}
}

// exitCode maps err to an exit code. Errors raised by cobra itself, such as an
// unknown command, are usage errors.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitCodeUsageError
}
