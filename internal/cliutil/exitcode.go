package cliutil

import "go.bryk.io/pkg/errors"

// ErrUsage is the root error a command's cobra.PositionalArgs func should
// wrap when the argument count itself is wrong, so ExitCode can tell it
// apart from an I/O or protocol failure.
var ErrUsage = errors.New("usage error")

// ExitCode maps a command error to the process exit code per the 0/1/2
// convention shared by all four binaries: 0 success, 1 I/O or protocol
// error, 2 usage/argument error. usageErrors lists additional root errors
// (e.g. address.ErrInvalid) that should also map to 2.
func ExitCode(err error, usageErrors ...error) int {
	if err == nil {
		return 0
	}
	if errors.IsAny(err, append(usageErrors, ErrUsage)...) {
		return 2
	}
	return 1
}
