// Command qsend writes messages from stdin, a file, or -m arguments to
// one or more AMQP 1.0 addresses, round-robining across them as each
// gains credit.
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
		messages  []string
		input     string
		verbose   bool
		quiet     bool
		id        string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:           "qsend URL [URL...]",
		Short:         "Send AMQP 1.0 messages",
		Args:          cliutil.RequireMinArgs(1, "URL argument is"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, urls []string) error {
			if id == "" {
				id = "qsend"
			}

			in, closeIn, err := openInput(input)
			if err != nil {
				return errors.Wrap(err, "open input")
			}
			defer closeIn()

			log := cliutil.SetupLogger(verbose, quiet, logFormat)
			h := client.NewSendHandler(id, client.SendOptions{
				Literals: messages,
				Input:    in,
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
	flags.StringArrayVarP(&messages, "message", "m", nil, "a string containing message content (repeatable)")
	flags.StringVarP(&input, "input", "i", "-", "read message content from FILE; '-' means stdin")
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
