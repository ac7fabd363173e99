package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/morozRed/kiln/internal/tasks"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitLintFailure = 2
	ExitUsage       = 3
)

// UsageError is a bad command line or configuration.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// reportedError has already been printed, usually as the BUILD FAILURE line.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	var usage *UsageError
	var graph *tasks.GraphError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage), errors.As(err, &graph):
		return ExitUsage
	case tasks.IsLintFailure(err):
		return ExitLintFailure
	default:
		return ExitFailure
	}
}

// Execute runs cmd with args, prints errors that were not already reported,
// and returns the exit code.
func Execute(cmd *cobra.Command, args []string, errOut io.Writer) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	var done *reportedError
	if err != nil && !errors.As(err, &done) {
		fmt.Fprintf(errOut, "kiln: %v\n", err)
		if errors.As(err, new(*UsageError)) {
			fmt.Fprintf(errOut, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
	}
	return ExitCode(err)
}
