// Package config handles configuration loading for cloudtrail-sentry.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/detection/rules"
	"cloudtrail-sentry/internal/logging"
	"cloudtrail-sentry/internal/schema"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Detection  DetectionConfig `yaml:"detection"`
	Alerting   AlertingConfig  `yaml:"alerting"`
	AWS        AWSConfig       `yaml:"aws"`
	Logging    logging.Config  `yaml:"logging"`
	Server     ServerConfig    `yaml:"server"`
	Replay     ReplayConfig    `yaml:"replay"`
	Stream     StreamConfig    `yaml:"stream"`
	Production bool            `yaml:"production"`
}

// DetectionConfig holds classifier settings.
type DetectionConfig struct {
	// MonitoredSources is the event source allow-list checked before any rule runs.
	MonitoredSources []string `yaml:"monitored_sources" validate:"required,min=1,dive,event_source"`
}

// AlertingConfig holds alert building and delivery settings.
type AlertingConfig struct {
	// Destination selects the notification channel. Empty disables delivery.
	Destination         string                  `yaml:"destination" validate:"omitempty,destination"`
	MessageFormat       string                  `yaml:"message_format" validate:"oneof=text json"`
	HighSeverityActions []string                `yaml:"high_severity_actions" validate:"dive,event_name"`
	MaxRequestChars     int                     `yaml:"max_request_chars" validate:"min=1,max=65536"`
	WebhookHeaders      map[string]string       `yaml:"webhook_headers"`
	Delivery            alerting.DeliveryConfig `yaml:"delivery"`
}

// ServerConfig holds HTTP adapter settings.
type ServerConfig struct {
	HTTPPort        int             `yaml:"http_port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes" validate:"min=1024"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client rate limiting for the HTTP adapter.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip" validate:"gte=0"` // Max requests per IP per window
	WindowSize    time.Duration `yaml:"window_size"`                      // Time window for rate limiting
	BurstSize     int           `yaml:"burst_size" validate:"gte=0"`      // Allow burst above limit temporarily
	CleanupPeriod time.Duration `yaml:"cleanup_period"`                   // How often to clean old entries
	ExemptPaths   []string      `yaml:"exempt_paths"`                     // Paths exempt from rate limiting
	TrustProxy    bool          `yaml:"trust_proxy"`                      // Trust X-Forwarded-For header
}

// StreamConfig holds settings for consuming CloudTrail events from a Kafka topic.
type StreamConfig struct {
	// Source is a kafka://broker[,broker]/topic identifier.
	Source        string        `yaml:"source" validate:"omitempty,destination"`
	GroupID       string        `yaml:"group_id" validate:"required"`
	StartOffset   string        `yaml:"start_offset" validate:"oneof=first last"`
	HandleTimeout time.Duration `yaml:"handle_timeout" validate:"gt=0"`
}

// ReplayConfig holds settings for replaying CloudTrail log files.
type ReplayConfig struct {
	Concurrency int `yaml:"concurrency" validate:"min=1,max=64"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			MonitoredSources: rules.MonitoredSources(),
		},
		Alerting: AlertingConfig{
			MessageFormat:       string(alerting.FormatText),
			HighSeverityActions: alerting.DefaultHighSeverityActions(),
			MaxRequestChars:     alerting.DefaultMaxRequestChars,
			Delivery:            alerting.DefaultDeliveryConfig(),
		},
		AWS: AWSConfig{
			RetryMaxAttempts: 3,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1024 * 1024, // 1MB
			RateLimit: RateLimitConfig{
				Enabled:       true,
				RequestsPerIP: 600,
				WindowSize:    time.Minute,
				BurstSize:     50,
				CleanupPeriod: 5 * time.Minute,
				ExemptPaths:   []string{"/health", "/metrics"},
			},
		},
		Replay: ReplayConfig{
			Concurrency: 4,
		},
		Stream: StreamConfig{
			GroupID:       "cloudtrail-sentry",
			StartOffset:   "last",
			HandleTimeout: 30 * time.Second,
		},
	}
}

// Load loads configuration from the file named by SENTRY_CONFIG_PATH, if any, then
// applies environment overrides.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("SENTRY_CONFIG_PATH"))
}

// LoadFile loads configuration from path, then applies environment overrides. An
// empty path or a missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
			// File doesn't exist, use defaults
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. The destination is read
// from SENTRY_DESTINATION, then ALERT_SNS_ARN, then TOPIC_ARN.
func (c *Config) applyEnvOverrides() error {
	for _, key := range []string{"SENTRY_DESTINATION", "ALERT_SNS_ARN", "TOPIC_ARN"} {
		if dest := strings.TrimSpace(os.Getenv(key)); dest != "" {
			c.Alerting.Destination = dest
			break
		}
	}

	if format := os.Getenv("SENTRY_MESSAGE_FORMAT"); format != "" {
		c.Alerting.MessageFormat = strings.ToLower(format)
	}

	if sources := os.Getenv("SENTRY_MONITORED_SOURCES"); sources != "" {
		c.Detection.MonitoredSources = splitAndTrim(sources, ",")
	}

	if source := os.Getenv("SENTRY_STREAM_SOURCE"); source != "" {
		c.Stream.Source = source
	}

	if group := os.Getenv("SENTRY_STREAM_GROUP"); group != "" {
		c.Stream.GroupID = group
	}

	if level := os.Getenv("SENTRY_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}

	if format := os.Getenv("SENTRY_LOG_FORMAT"); format != "" {
		c.Logging.Format = strings.ToLower(format)
	}

	if file := os.Getenv("SENTRY_LOG_FILE"); file != "" {
		c.Logging.File = file
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		c.AWS.Region = region
	}

	if endpoint := os.Getenv("SENTRY_AWS_ENDPOINT"); endpoint != "" {
		c.AWS.Endpoint = endpoint
	}

	if port := os.Getenv("SENTRY_HTTP_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SENTRY_HTTP_PORT %q: %w", port, err)
		}
		c.Server.HTTPPort = n
	}

	if prod := os.Getenv("SENTRY_PRODUCTION"); prod != "" {
		b, err := strconv.ParseBool(prod)
		if err != nil {
			return fmt.Errorf("invalid SENTRY_PRODUCTION %q: %w", prod, err)
		}
		c.Production = b
	}

	return nil
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := schema.NewValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Alerting.Delivery.MaxBackoff > 0 && c.Alerting.Delivery.MaxBackoff < c.Alerting.Delivery.InitialBackoff {
		return fmt.Errorf("invalid config: delivery max_backoff %v is below initial_backoff %v",
			c.Alerting.Delivery.MaxBackoff, c.Alerting.Delivery.InitialBackoff)
	}

	if c.Stream.Source != "" && !strings.HasPrefix(strings.ToLower(c.Stream.Source), "kafka://") {
		return fmt.Errorf("invalid config: stream source must be a kafka:// identifier")
	}

	if rl := c.Server.RateLimit; rl.Enabled && (rl.RequestsPerIP <= 0 || rl.WindowSize <= 0) {
		return fmt.Errorf("invalid config: rate_limit requires requests_per_ip and window_size when enabled")
	}

	return nil
}

// HasDestination reports whether delivery is configured.
func (c *Config) HasDestination() bool {
	return strings.TrimSpace(c.Alerting.Destination) != ""
}

// BuilderConfig returns the alert builder settings.
func (c *Config) BuilderConfig() alerting.BuilderConfig {
	return alerting.BuilderConfig{
		HighSeverityActions: c.Alerting.HighSeverityActions,
		MaxRequestChars:     c.Alerting.MaxRequestChars,
	}
}
