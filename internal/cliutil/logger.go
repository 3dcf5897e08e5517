// Package cliutil holds the small pieces of CLI plumbing shared by
// qbroker, qsend, qreceive and qrequest: logger setup from the common
// --verbose/--quiet/--log-format flags.
package cliutil

import xlog "go.bryk.io/pkg/log"

// SetupLogger builds the logger each binary passes down instead of a
// package-level global. quiet takes precedence over verbose.
func SetupLogger(verbose, quiet bool, format string) xlog.Logger {
	if quiet {
		return xlog.Discard()
	}
	log := xlog.WithZero(xlog.ZeroOptions{PrettyPrint: format != "json"})
	if verbose {
		log.SetLevel(xlog.Debug)
	} else {
		log.SetLevel(xlog.Info)
	}
	return log
}
