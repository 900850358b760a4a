package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"cloudtrail-sentry/internal/metrics"
	"cloudtrail-sentry/internal/stream"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (a *app) consumeCommand() *cobra.Command {
	var (
		dryRun bool
		group  string
	)

	cmd := &cobra.Command{
		Use:   "consume [kafka://broker[,broker]/topic]",
		Short: "Consume CloudTrail events from a Kafka topic",
		Long: `Consume joins a Kafka consumer group and runs every message (an EventBridge
envelope or a bare CloudTrail record) through the pipeline until interrupted.
The source defaults to stream.source in the config file.

Examples:
  sentry consume kafka://b1:9092,b2:9092/cloudtrail.events
  sentry consume --group sentry-canary --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, p, err := a.pipeline(ctx, cmd, dryRun, metrics.New(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			defer p.Close()

			if len(args) == 1 {
				cfg.Stream.Source = args[0]
			}
			if group != "" {
				cfg.Stream.GroupID = group
			}

			c, err := stream.NewConsumer(cfg.Stream, p, slog.Default())
			if err != nil {
				return err
			}
			defer c.Close()

			err = c.Run(ctx)
			if a.jsonOutput() {
				if werr := writeJSON(cmd.OutOrStdout(), c.Stats()); werr != nil {
					return werr
				}
			} else {
				s := c.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "consumed %d, interesting %d, invalid %d, delivery failures %d\n",
					s.Consumed, s.Interesting, s.Invalid, s.DeliveryFailures)
			}

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify only, never publish")
	cmd.Flags().StringVar(&group, "group", "", "consumer group ID (default from config)")
	return cmd
}
