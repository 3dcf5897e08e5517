// Command qreceive reads messages arriving on one or more AMQP 1.0
// addresses and writes their bodies to stdout or a file, one per line.
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
		count     int
		output    string
		asJSON    bool
		noPrefix  bool
		verbose   bool
		quiet     bool
		id        string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:           "qreceive URL [URL...]",
		Short:         "Receive AMQP 1.0 messages",
		Args:          cliutil.RequireMinArgs(1, "URL argument is"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, urls []string) error {
			if id == "" {
				id = "qreceive"
			}

			out, closeOut, err := openOutput(output)
			if err != nil {
				return errors.Wrap(err, "open output")
			}
			defer closeOut()

			log := cliutil.SetupLogger(verbose, quiet, logFormat)
			h := client.NewReceiveHandler(id, client.ReceiveOptions{
				Max:      count,
				Output:   out,
				JSON:     asJSON,
				NoPrefix: noPrefix,
				Verbose:  verbose,
			}, log)

			c := wireamqp.NewContainer(h, log)
			c.ContainerID = id
			if err := h.Connect(c, urls); err != nil {
				return errors.Wrap(err, "connect")
			}

			go c.Run()
			<-c.Done()
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&count, "count", "c", 0, "stop after receiving this many messages (0 means unlimited)")
	flags.StringVarP(&output, "output", "o", "-", "write message content to FILE; '-' means stdout")
	flags.BoolVar(&asJSON, "json", false, "write each message as a JSON envelope instead of plain text")
	flags.BoolVar(&noPrefix, "no-prefix", false, "omit the source address prefix from plain text output")
	flags.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flags.BoolVar(&quiet, "quiet", false, "suppress all logging")
	flags.StringVar(&id, "id", "", "override the AMQP container-id")
	flags.StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	return cmd
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
