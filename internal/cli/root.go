// Package cli implements the sentry command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloudtrail-sentry/internal/config"
	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/logging"
	"cloudtrail-sentry/internal/metrics"
	"cloudtrail-sentry/internal/sentry"
	"cloudtrail-sentry/internal/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by all subcommands.
type app struct {
	v      *viper.Viper
	closer io.Closer
}

// NewRootCommand builds the command tree. Every call returns an independent tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "sentry",
		Short: "Classify CloudTrail events and raise security alerts",
		Long: `sentry evaluates AWS CloudTrail audit events against a fixed rule table and
publishes an alert for each event worth a human's attention.

Examples:
  sentry classify event.json
  sentry consume kafka://b1:9092/cloudtrail.events
  sentry replay s3://trail-bucket/AWSLogs/111122223333/CloudTrail/
  sentry serve --destination arn:aws:sns:us-east-1:111122223333:security-alerts`,
		SilenceUsage:      true,
		PersistentPostRun: a.shutdown,
	}

	root.Version = version.Short()
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $SENTRY_CONFIG_PATH)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("destination", "", "alert destination (SNS ARN, kafka://, nats://, redis://, https://)")
	flags.Bool("json", false, "print machine-readable JSON")
	_ = a.v.BindPFlags(flags)

	a.v.SetEnvPrefix("SENTRY")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.checkCommand(),
		a.classifyCommand(),
		a.consumeCommand(),
		a.replayCommand(),
		a.rulesCommand(),
		a.serveCommand(),
		a.versionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConfig loads the config file, applies flag overrides and validates the result.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := a.readConfig()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sentryerr.SetProductionMode(cfg.Production)
	return cfg, nil
}

// readConfig loads the config file and applies flag overrides without validating.
func (a *app) readConfig() (*config.Config, error) {
	path := a.v.GetString("config")
	if path == "" {
		path = os.Getenv("SENTRY_CONFIG_PATH")
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level := a.v.GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if dest := a.v.GetString("destination"); dest != "" {
		cfg.Alerting.Destination = dest
	}
	return cfg, nil
}

// setupLogging installs the default logger. Output goes to w unless a log file is
// configured, so stdout stays reserved for command output.
func (a *app) setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.Logging.File != "" {
		a.closer = logging.Setup(cfg.Logging)
		return slog.Default()
	}
	logger := logging.NewWithWriter(cfg.Logging, w)
	slog.SetDefault(logger)
	return logger
}

func (a *app) shutdown(*cobra.Command, []string) {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// pipeline loads config and builds a pipeline. dryRun disables delivery.
func (a *app) pipeline(ctx context.Context, cmd *cobra.Command, dryRun bool, m *metrics.Metrics) (*config.Config, *sentry.Pipeline, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if dryRun {
		cfg.Alerting.Destination = ""
	}

	logger := a.setupLogging(cfg, cmd.ErrOrStderr())

	p, err := sentry.FromConfig(ctx, cfg, m, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

func (a *app) jsonOutput() bool {
	return a.v.GetBool("json")
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": version.Version,
					"commit":  version.Commit,
					"built":   version.BuildDate,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return nil
		},
	}
}
