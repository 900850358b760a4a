// Package startup provides startup diagnostics: configuration, rule reachability,
// destination connectivity and local resources.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/config"
	"cloudtrail-sentry/internal/detection/rules"
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name    string            `json:"name"`
	Status  Status            `json:"status"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Status represents the status of a diagnostic check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Diagnostics runs all startup diagnostics
type Diagnostics struct {
	cfg         *config.Config
	results     []DiagnosticResult
	logger      *slog.Logger
	checkPort   bool
	dialTimeout time.Duration
	dial        dialFunc
}

// NewDiagnostics creates a new diagnostics runner
func NewDiagnostics(cfg *config.Config, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Diagnostics{
		cfg:         cfg,
		logger:      logger,
		dialTimeout: 3 * time.Second,
	}
	d.dial = (&net.Dialer{}).DialContext
	return d
}

// WithPortCheck enables the HTTP listen port check.
func (d *Diagnostics) WithPortCheck(enabled bool) *Diagnostics {
	d.checkPort = enabled
	return d
}

// WithDialTimeout sets the timeout for each connectivity probe.
func (d *Diagnostics) WithDialTimeout(timeout time.Duration) *Diagnostics {
	if timeout > 0 {
		d.dialTimeout = timeout
	}
	return d
}

// RunAll runs all diagnostic checks
func (d *Diagnostics) RunAll(ctx context.Context) []DiagnosticResult {
	d.results = nil
	d.logger.Info("running startup diagnostics")

	d.checkSystem()
	d.checkConfiguration()
	d.checkRules()
	d.checkDestination(ctx)
	d.checkLogFile()
	if d.checkPort {
		d.checkListenPort()
	}
	d.checkProduction()

	d.printSummary()

	return d.results
}

func (d *Diagnostics) addResult(result DiagnosticResult) {
	d.results = append(d.results, result)

	attrs := []any{
		"check", result.Name,
		"status", result.Status.String(),
	}
	if result.Message != "" {
		attrs = append(attrs, "message", result.Message)
	}
	for k, v := range result.Details {
		attrs = append(attrs, k, v)
	}

	switch result.Status {
	case StatusOK:
		d.logger.Info("diagnostic check passed", attrs...)
	case StatusWarning:
		d.logger.Warn("diagnostic check warning", attrs...)
	case StatusError:
		d.logger.Error("diagnostic check failed", attrs...)
	case StatusSkipped:
		d.logger.Debug("diagnostic check skipped", attrs...)
	}
}

func (d *Diagnostics) checkSystem() {
	d.addResult(DiagnosticResult{
		Name:    "runtime",
		Status:  StatusOK,
		Message: "Go runtime detected",
		Details: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       fmt.Sprintf("%d", runtime.NumCPU()),
		},
	})
}

func (d *Diagnostics) checkConfiguration() {
	if err := d.cfg.Validate(); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusError,
			Message: fmt.Sprintf("Configuration validation failed: %s", err),
		})
		return
	}

	d.addResult(DiagnosticResult{
		Name:    "config_validation",
		Status:  StatusOK,
		Message: "Configuration is valid",
		Details: map[string]string{
			"monitored_sources": fmt.Sprintf("%d", len(d.cfg.Detection.MonitoredSources)),
			"message_format":    d.cfg.Alerting.MessageFormat,
		},
	})
}

// checkRules warns about rules whose event source is not monitored; they can never match.
func (d *Diagnostics) checkRules() {
	classifier, err := rules.NewDefaultClassifier(d.cfg.Detection.MonitoredSources)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "rules",
			Status:  StatusError,
			Message: fmt.Sprintf("Failed to build rule table: %s", err),
		})
		return
	}

	active := 0
	for _, r := range classifier.Rules() {
		if r.Source != "" && !classifier.Monitors(r.Source) {
			d.addResult(DiagnosticResult{
				Name:    "rule_" + r.ID,
				Status:  StatusWarning,
				Message: "Rule source is not monitored, rule can never match",
				Details: map[string]string{"source": r.Source},
			})
			continue
		}
		active++
	}

	d.addResult(DiagnosticResult{
		Name:    "rules",
		Status:  StatusOK,
		Message: "Rule table loaded",
		Details: map[string]string{
			"rules":  fmt.Sprintf("%d", len(classifier.Rules())),
			"active": fmt.Sprintf("%d", active),
		},
	})
}

func (d *Diagnostics) checkDestination(ctx context.Context) {
	if !d.cfg.HasDestination() {
		d.addResult(DiagnosticResult{
			Name:    "destination",
			Status:  StatusWarning,
			Message: "No destination configured, alerts will only be logged",
		})
		return
	}

	dest, err := alerting.ParseDestination(d.cfg.Alerting.Destination)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "destination",
			Status:  StatusError,
			Message: err.Error(),
		})
		return
	}

	details := map[string]string{
		"scheme":      string(dest.Scheme),
		"destination": dest.String(),
	}

	if dest.Scheme == alerting.SchemeSNS {
		d.checkAWSCredentials(ctx, dest, details)
		return
	}

	for _, addr := range probeAddrs(dest) {
		dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
		conn, err := d.dial(dialCtx, "tcp", addr)
		cancel()
		if err != nil {
			details["addr"] = addr
			d.addResult(DiagnosticResult{
				Name:    "destination",
				Status:  StatusError,
				Message: fmt.Sprintf("Destination not reachable: %s", err),
				Details: details,
			})
			return
		}
		conn.Close()
	}

	d.addResult(DiagnosticResult{
		Name:    "destination",
		Status:  StatusOK,
		Message: "Destination reachable",
		Details: details,
	})
}

func (d *Diagnostics) checkAWSCredentials(ctx context.Context, dest alerting.Destination, details map[string]string) {
	region := dest.Region
	if d.cfg.AWS.Region != "" {
		region = d.cfg.AWS.Region
	}
	details["region"] = region

	awsCfg, err := d.cfg.AWS.Load(ctx, region)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "destination",
			Status:  StatusError,
			Message: err.Error(),
			Details: details,
		})
		return
	}

	credCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()
	if awsCfg.Credentials == nil {
		d.addResult(DiagnosticResult{
			Name:    "destination",
			Status:  StatusWarning,
			Message: "No AWS credential provider configured",
			Details: details,
		})
		return
	}
	creds, err := awsCfg.Credentials.Retrieve(credCtx)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "destination",
			Status:  StatusWarning,
			Message: fmt.Sprintf("AWS credentials not available: %s", err),
			Details: details,
		})
		return
	}

	details["credential_source"] = creds.Source
	d.addResult(DiagnosticResult{
		Name:    "destination",
		Status:  StatusOK,
		Message: "AWS credentials resolved for SNS topic",
		Details: details,
	})
}

// probeAddrs returns host:port pairs to dial for a destination.
func probeAddrs(dest alerting.Destination) []string {
	switch dest.Scheme {
	case alerting.SchemeWebhook:
		u, err := url.Parse(dest.Target)
		if err != nil {
			return nil
		}
		port := u.Port()
		if port == "" {
			port = "443"
			if u.Scheme == "http" {
				port = "80"
			}
		}
		return []string{net.JoinHostPort(u.Hostname(), port)}
	case alerting.SchemeNATS:
		addrs := make([]string, 0, len(dest.Addrs))
		for _, a := range dest.Addrs {
			if _, host, ok := strings.Cut(a, "://"); ok {
				a = host
			}
			addrs = append(addrs, strings.Split(a, ",")...)
		}
		return addrs
	default:
		return dest.Addrs
	}
}

func (d *Diagnostics) checkLogFile() {
	if d.cfg.Logging.File == "" {
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusSkipped,
			Message: "Logging to standard output",
		})
		return
	}

	dir := filepath.Dir(d.cfg.Logging.File)
	probe, err := os.CreateTemp(dir, ".sentry-write-check-*")
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusError,
			Message: fmt.Sprintf("Log directory not writable: %s", err),
			Details: map[string]string{"path": d.cfg.Logging.File},
		})
		return
	}
	probe.Close()
	os.Remove(probe.Name())

	d.addResult(DiagnosticResult{
		Name:    "log_file",
		Status:  StatusOK,
		Message: "Log directory writable",
		Details: map[string]string{"path": d.cfg.Logging.File},
	})
}

func (d *Diagnostics) checkListenPort() {
	addr := fmt.Sprintf(":%d", d.cfg.Server.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "http_port",
			Status:  StatusError,
			Message: fmt.Sprintf("Port unavailable: %s", err),
			Details: map[string]string{"port": fmt.Sprintf("%d", d.cfg.Server.HTTPPort)},
		})
		return
	}
	ln.Close()

	d.addResult(DiagnosticResult{
		Name:    "http_port",
		Status:  StatusOK,
		Message: "Port available",
		Details: map[string]string{"port": fmt.Sprintf("%d", d.cfg.Server.HTTPPort)},
	})
}

func (d *Diagnostics) checkProduction() {
	if !d.cfg.Production {
		d.addResult(DiagnosticResult{
			Name:    "production",
			Status:  StatusSkipped,
			Message: "Development mode, error messages are not sanitized",
		})
		return
	}

	if !d.cfg.HasDestination() {
		d.addResult(DiagnosticResult{
			Name:    "production_destination",
			Status:  StatusWarning,
			Message: "Production mode without an alert destination",
		})
	}
	if d.cfg.Logging.Level == "debug" {
		d.addResult(DiagnosticResult{
			Name:    "production_log_level",
			Status:  StatusWarning,
			Message: "Debug logging enabled in production",
		})
	}
	if !d.cfg.Server.RateLimit.Enabled {
		d.addResult(DiagnosticResult{
			Name:    "production_rate_limit",
			Status:  StatusWarning,
			Message: "HTTP rate limiting disabled in production",
		})
	}

	d.addResult(DiagnosticResult{
		Name:    "production",
		Status:  StatusOK,
		Message: "Production mode, error messages are sanitized",
	})
}

func (d *Diagnostics) printSummary() {
	var ok, warnings, errors, skipped int
	for _, r := range d.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warnings++
		case StatusError:
			errors++
		case StatusSkipped:
			skipped++
		}
	}

	d.logger.Info("diagnostics summary",
		"passed", ok,
		"warnings", warnings,
		"errors", errors,
		"skipped", skipped,
	)
}

// HasErrors returns true if any diagnostic check failed
func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any diagnostic check has warnings
func (d *Diagnostics) HasWarnings() bool {
	for _, r := range d.results {
		if r.Status == StatusWarning {
			return true
		}
	}
	return false
}
