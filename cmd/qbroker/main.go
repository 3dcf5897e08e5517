// Command qbroker runs a minimal AMQP 1.0 broker: it accepts peer
// connections, hosts an unbounded set of named queues created on demand,
// and routes messages from producers to consumers using AMQP 1.0 credit
// flow control.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManishShukla27/qtools/internal/broker"
	"github.com/ManishShukla27/qtools/internal/cliutil"
	"github.com/ManishShukla27/qtools/internal/metrics"
	"github.com/ManishShukla27/qtools/internal/wireamqp"
	"github.com/spf13/cobra"
	"go.bryk.io/pkg/errors"
	xlog "go.bryk.io/pkg/log"
)

func main() {
	err := newCommand().Execute()
	os.Exit(cliutil.ExitCode(err))
}

func newCommand() *cobra.Command {
	var (
		verbose     bool
		quiet       bool
		id          string
		logFormat   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "qbroker [DOMAIN]",
		Short:         "Run a minimal AMQP 1.0 message broker",
		Args:          cliutil.MaxArgs(1, "DOMAIN argument"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := "localhost:5672"
			if len(args) == 1 {
				domain = args[0]
			}
			if id == "" {
				id = "qbroker"
			}
			log := cliutil.SetupLogger(verbose, quiet, logFormat)
			return run(domain, id, metricsAddr, log)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&verbose, "verbose", false, "enable verbose logging")
	flags.BoolVar(&quiet, "quiet", false, "suppress all logging")
	flags.StringVar(&id, "id", "", "override the broker's AMQP container-id")
	flags.StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled if empty)")
	return cmd
}

func run(domain, id, metricsAddr string, log xlog.Logger) error {
	handler := broker.NewHandler(log)
	container := wireamqp.NewContainer(handler, log)
	container.ContainerID = id
	if err := container.Listen(domain); err != nil {
		return errors.Wrap(err, "bind failed")
	}
	log.WithField("domain", domain).Info("broker listening")

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(metricsAddr); err != nil {
				log.WithField("error", err.Error()).Warning("metrics server stopped")
			}
		}()
		log.WithField("addr", metricsAddr).Info("metrics endpoint enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go container.Run()
	<-ctx.Done()
	log.Info("shutting down")
	container.Stop()
	<-container.Done()
	return nil
}
