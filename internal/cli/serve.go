package cli

import (
	"log/slog"
	"os/signal"
	"syscall"

	"cloudtrail-sentry/internal/api"
	"cloudtrail-sentry/internal/metrics"
	"cloudtrail-sentry/internal/startup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (a *app) serveCommand() *cobra.Command {
	var (
		port       int
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP adapter",
		Long: `Serve exposes the pipeline over HTTP:

  POST /v1/evaluate   EventBridge envelope or bare record in, result out
  GET  /health        liveness and counters
  GET  /metrics       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := metrics.New(prometheus.DefaultRegisterer)
			cfg, p, err := a.pipeline(ctx, cmd, false, m)
			if err != nil {
				return err
			}
			defer p.Close()

			if port > 0 {
				cfg.Server.HTTPPort = port
			}

			if !skipChecks {
				d := startup.NewDiagnostics(cfg, slog.Default()).WithPortCheck(true)
				d.RunAll(ctx)
				if d.HasErrors() {
					return errChecksFailed
				}
			}

			handler := api.NewHandler(p, prometheus.DefaultGatherer).WithMaxPayload(cfg.Server.MaxBodyBytes)
			return api.NewServer(cfg.Server, handler, nil).ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "start without running startup diagnostics")
	return cmd
}
