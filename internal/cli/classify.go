package cli

import (
	"fmt"
	"io"
	"os"

	"cloudtrail-sentry/internal/sentry"

	"github.com/spf13/cobra"
)

func (a *app) classifyCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "classify [file|-]...",
		Short: "Classify EventBridge envelopes or bare CloudTrail records",
		Long: `Classify reads one JSON document per file (or stdin when no file or "-" is
given), runs it through the pipeline and prints the result. Alerts are published
to the configured destination unless --dry-run is set.

Examples:
  sentry classify event.json
  aws cloudtrail lookup-events ... | jq '.Events[0].CloudTrailEvent | fromjson' | sentry classify -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, p, err := a.pipeline(ctx, cmd, dryRun, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			if len(args) == 0 {
				args = []string{"-"}
			}

			results := make([]*sentry.Result, 0, len(args))
			for _, name := range args {
				data, err := readInput(cmd.InOrStdin(), name)
				if err != nil {
					return err
				}
				res, err := p.HandleJSON(ctx, data)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				results = append(results, res)

				if !a.jsonOutput() {
					display := name
					if len(args) == 1 {
						display = ""
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderResult(display, res))
				}
			}

			if a.jsonOutput() {
				if len(results) == 1 {
					return writeJSON(cmd.OutOrStdout(), results[0])
				}
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify only, never publish")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}
