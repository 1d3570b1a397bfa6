package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/cli"
	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/system"
	"github.com/telekom/mailgun-notifier/pkg/version"
)

type Config struct {
	OutputWriter io.Writer
	Input        io.Reader
	// Logger replaces the logger built from --debug, mainly for tests.
	Logger *zap.Logger
}

type runtimeState struct {
	flags  cli.Config
	cfg    config.Config
	logger *zap.Logger
	writer io.Writer
	input  io.Reader
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		OutputWriter: os.Stdout,
		Input:        os.Stdin,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{writer: cfg.OutputWriter, input: cfg.Input, logger: cfg.Logger}

	root := &cobra.Command{
		Use:           version.Name,
		Short:         "Send templated emails through Mailgun for incoming signals",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.input == nil {
				rt.input = os.Stdin
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			if rt.logger == nil {
				logger, err := system.SetupLogger(rt.flags.Debug)
				if err != nil {
					return err
				}
				rt.logger = logger
			}
			log := rt.logger.Sugar()
			if rt.flags.Debug {
				rt.flags.Print(log)
			}

			loaded, err := rt.flags.Load(log)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	rt.flags.BindFlags(root.PersistentFlags())

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewServeCommand(),
		NewRunCommand(),
		NewSendCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Logger() *zap.Logger {
	if rt.logger != nil {
		return rt.logger
	}
	return zap.NewNop()
}
