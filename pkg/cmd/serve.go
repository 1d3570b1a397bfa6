package cmd

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telekom/mailgun-notifier/pkg/api"
	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/notifier"
	"github.com/telekom/mailgun-notifier/pkg/stream"
	"github.com/telekom/mailgun-notifier/pkg/version"
)

func NewServeCommand() *cobra.Command {
	var withKafka bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the signal HTTP API",
		Long: `Serves POST /api/signals, /healthz and /metrics. With --kafka, a stream
runner consuming the configured Kafka input topic runs alongside the API and
publishes results to the configured output topic.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			log := rt.Logger().Sugar()
			log.Infow("Starting mailgun-notifier", "version", version.Version)

			cfg := rt.cfg
			if withKafka {
				cfg.Stream.Input = config.StreamKafka
				cfg.Stream.Output = config.StreamKafka
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			n, err := notifier.NewFromConfig(cfg, log)
			if err != nil {
				return err
			}
			server, err := api.NewServer(rt.Logger(), cfg.Server, rt.flags.Debug, n)
			if err != nil {
				return err
			}
			defer server.Close()

			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// Either component failing stops the other.
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			errCh := make(chan error, 2)
			running := 1
			go func() {
				errCh <- server.Run(ctx)
			}()

			if withKafka {
				source, err := rt.newSource(cfg.Stream)
				if err != nil {
					cancel()
					<-errCh
					return err
				}
				sink, err := rt.newSink(cfg.Stream)
				if err != nil {
					closeAll(log, source)
					cancel()
					<-errCh
					return err
				}
				defer closeAll(log, source, sink)

				running++
				runner := stream.NewRunner(source, sink, n, runnerConfig(cfg.Stream), log)
				go func() {
					errCh <- runner.Run(ctx)
				}()
			}

			var firstErr error
			for i := 0; i < running; i++ {
				if err := <-errCh; err != nil && firstErr == nil {
					firstErr = err
				}
				cancel()
			}
			return firstErr
		},
	}

	cmd.Flags().BoolVar(&withKafka, "kafka", false, "Also consume signals from the configured Kafka input topic")

	return cmd
}
