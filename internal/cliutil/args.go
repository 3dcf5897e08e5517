package cliutil

import (
	"github.com/spf13/cobra"
	"go.bryk.io/pkg/errors"
)

// RequireMinArgs returns a cobra.PositionalArgs that requires at least n
// arguments, wrapping the failure in ErrUsage so ExitCode maps it to 2
// instead of the generic 1 cobra's own error would otherwise produce.
func RequireMinArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return errors.Wrapf(ErrUsage, "at least %d %s required", n, what)
		}
		return nil
	}
}

// MaxArgs returns a cobra.PositionalArgs that rejects more than n
// arguments, wrapping the failure in ErrUsage the same way RequireMinArgs
// does.
func MaxArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return errors.Wrapf(ErrUsage, "at most %d %s allowed", n, what)
		}
		return nil
	}
}
