package cli

import (
	"fmt"

	"cloudtrail-sentry/internal/metrics"
	"cloudtrail-sentry/internal/replay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (a *app) replayCommand() *cobra.Command {
	var (
		dryRun      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "replay <path|s3://bucket/prefix>",
		Short: "Replay archived CloudTrail log files",
		Long: `Replay reads CloudTrail log files ({"Records":[...]}, optionally gzipped) from a
local file, a directory tree or an S3 prefix and runs every record through the
pipeline. Alerts are published unless --dry-run is set.

Examples:
  sentry replay ./AWSLogs --dry-run
  sentry replay s3://trail-bucket/AWSLogs/111122223333/CloudTrail/us-east-1/2024/05/01/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m := metrics.New(prometheus.NewRegistry())

			cfg, p, err := a.pipeline(ctx, cmd, dryRun, m)
			if err != nil {
				return err
			}
			defer p.Close()

			var src replay.Source
			if bucket, prefix, ok := replay.ParseS3URL(args[0]); ok {
				client, err := cfg.AWS.S3Client(ctx)
				if err != nil {
					return err
				}
				src = replay.NewS3Source(client, bucket, prefix)
			} else {
				src = replay.NewFileSource(args[0])
			}

			if concurrency <= 0 {
				concurrency = cfg.Replay.Concurrency
			}

			summary, err := replay.NewRunner(p, concurrency).WithMetrics(m).Run(ctx, src)
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify only, never publish")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "files replayed in parallel (default from config)")
	return cmd
}
