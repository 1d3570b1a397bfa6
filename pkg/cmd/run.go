package cmd

import (
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telekom/mailgun-notifier/pkg/notifier"
	"github.com/telekom/mailgun-notifier/pkg/stream"
)

func NewRunCommand() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a stream of signals (stdin or Kafka) and emit one result per signal",
		Long: `Reads signals from the configured source, sends one email per signal and
writes one result per signal to the configured sink. With stdio endpoints,
signals are read as JSON lines from stdin and results are written as JSON
lines to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			log := rt.Logger().Sugar()

			cfg := rt.cfg
			if input != "" {
				cfg.Stream.Input = input
			}
			if output != "" {
				cfg.Stream.Output = output
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			n, err := notifier.NewFromConfig(cfg, log)
			if err != nil {
				return err
			}
			source, err := rt.newSource(cfg.Stream)
			if err != nil {
				return err
			}
			sink, err := rt.newSink(cfg.Stream)
			if err != nil {
				closeAll(log, source)
				return err
			}
			defer closeAll(log, source, sink)

			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return stream.NewRunner(source, sink, n, runnerConfig(cfg.Stream), log).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Override the signal source: stdio or kafka")
	cmd.Flags().StringVar(&output, "output", "", "Override the result sink: stdio or kafka")

	return cmd
}
