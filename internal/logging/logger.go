// Package logging configures structured logging and masks sensitive values before
// they reach logs or alert bodies.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger settings.
type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	// File, when set, receives log output through a rotating writer instead of stdout.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

const (
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 30
)

// New creates a logger for cfg. The returned closer releases the log file, if any.
func New(cfg Config) (*slog.Logger, io.Closer) {
	if cfg.File == "" {
		return NewWithWriter(cfg, os.Stdout), nopCloser{}
	}

	out := newLumberjackOutput(cfg)
	return NewWithWriter(cfg, out), out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewWithWriter creates a logger for cfg writing to w.
func NewWithWriter(cfg Config, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// Setup creates a logger for cfg and installs it as the slog default.
func Setup(cfg Config) io.Closer {
	logger, closer := New(cfg)
	slog.SetDefault(logger)
	return closer
}

// ParseLevel maps a level name to a slog level. Unknown names select info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLumberjackOutput(cfg Config) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = defaultMaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
}
