// Command qrequest sends requests on one or more AMQP 1.0 addresses and
// prints each matching response, correlating them through a dynamically
// addressed reply-to link per address.
package main

import (
	"io"
	"os"

	"github.com/ManishShukla27/qtools/internal/address"
	"github.com/ManishShukla27/qtools/internal/client"
	"github.com/ManishShukla27/qtools/internal/cliutil"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	"github.com/spf13/cobra"
	"go.bryk.io/pkg/errors"
)

func main() {
	err := newCommand().Execute()
	os.Exit(cliutil.ExitCode(err, address.ErrInvalid))
}

func newCommand() *cobra.Command {
	var (
		requests  []string
		input     string
		verbose   bool
		quiet     bool
		id        string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:           "qrequest URL [URL...]",
		Short:         "Send AMQP 1.0 requests and print their responses",
		Args:          cliutil.RequireMinArgs(1, "URL argument is"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, urls []string) error {
			if id == "" {
				id = "qrequest"
			}

			in, closeIn, err := openInput(input)
			if err != nil {
				return errors.Wrap(err, "open input")
			}
			defer closeIn()

			log := cliutil.SetupLogger(verbose, quiet, logFormat)
			h := client.NewRequestHandler(id, client.RequestOptions{
				Requests: requests,
				Input:    in,
				Output:   os.Stdout,
				Verbose:  verbose,
			}, log)

			c := wireamqp.NewContainer(h, log)
			c.ContainerID = id
			if err := h.Connect(c, urls); err != nil {
				return errors.Wrap(err, "connect")
			}

			go h.Feed(c)
			go c.Run()
			<-c.Done()
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&requests, "request", "r", nil, "a string containing request content (repeatable)")
	flags.StringVarP(&input, "input", "i", "-", "read request content from FILE; '-' means stdin")
	flags.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flags.BoolVar(&quiet, "quiet", false, "suppress all logging")
	flags.StringVar(&id, "id", "", "override the AMQP container-id")
	flags.StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	return cmd
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
