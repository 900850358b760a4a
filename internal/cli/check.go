package cli

import (
	"errors"
	"fmt"
	"time"

	"cloudtrail-sentry/internal/startup"

	"github.com/spf13/cobra"
)

var errChecksFailed = errors.New("diagnostic checks failed")

func (a *app) checkCommand() *cobra.Command {
	var (
		port    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run startup diagnostics against the current configuration",
		Long: `Check validates the configuration, reports rules that can never match,
probes the alert destination and verifies local resources. It exits non-zero
when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.readConfig()
			if err != nil {
				return err
			}
			logger := a.setupLogging(cfg, cmd.ErrOrStderr())

			d := startup.NewDiagnostics(cfg, logger).
				WithPortCheck(port).
				WithDialTimeout(timeout)
			results := d.RunAll(cmd.Context())

			if a.jsonOutput() {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderChecks(results))
			}

			if d.HasErrors() {
				return errChecksFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&port, "port", false, "also check that the HTTP port is free")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "timeout for each connectivity probe")
	return cmd
}
