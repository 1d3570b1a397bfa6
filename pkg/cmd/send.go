package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/telekom/mailgun-notifier/pkg/mail"
	"github.com/telekom/mailgun-notifier/pkg/notifier"
	"github.com/telekom/mailgun-notifier/pkg/signal"
	"github.com/telekom/mailgun-notifier/pkg/stream"
)

// preview is the dry-run rendering of one signal. The API key is never shown.
type preview struct {
	Domain string        `json:"domain"`
	Mail   *mail.Message `json:"mail,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func NewSendCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "send [FILE]",
		Short: "Send emails for the signals in a file or on stdin",
		Long: `Reads one document holding a signal object or an array of signals, in JSON
or YAML, from FILE or stdin ("-" or no argument). One result per signal is
written to stdout as a JSON line. The command fails when any signal failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			log := rt.Logger().Sugar()

			data, err := readSignalDocument(rt.input, args)
			if err != nil {
				return err
			}
			sigs, err := decodeSignalDocument(data)
			if err != nil {
				return err
			}

			n, err := notifier.NewFromConfig(rt.cfg, log)
			if err != nil {
				return err
			}

			if dryRun {
				return writePreviews(rt.Writer(), n, sigs)
			}

			results := n.ProcessSignals(cmd.Context(), sigs)
			if err := stream.NewJSONSink("stdout", rt.Writer()).Write(cmd.Context(), results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if signal.IsFailure(r) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d signals failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve templates and print the emails without sending")

	return cmd
}

func readSignalDocument(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read signals from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read signal file: %w", err)
	}
	return data, nil
}

// decodeSignalDocument accepts JSON or YAML. YAML is converted to JSON first
// so numbers and nesting decode the same way for both.
func decodeSignalDocument(data []byte) ([]signal.Signal, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signal document: %w", err)
	}
	sigs, err := signal.Decode(jsonData)
	if err != nil {
		return nil, fmt.Errorf("invalid signal document: %w", err)
	}
	return sigs, nil
}

func writePreviews(w io.Writer, n *notifier.Notifier, sigs []signal.Signal) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, sig := range sigs {
		creds, msg, err := n.Build(sig)
		p := preview{Domain: creds.Domain, Mail: msg}
		if err != nil {
			p = preview{Error: err.Error()}
		}
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
	}
	return nil
}
