// Package logger builds the process-wide logrus logger and hands out
// component-scoped entries.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Component names a subsystem in log output
type Component string

const (
	ComponentApp      Component = "app"
	ComponentDownload Component = "download"
	ComponentRunner   Component = "runner"
	ComponentExtract  Component = "extract"
	ComponentEvents   Component = "events"
	ComponentStatus   Component = "status"
	ComponentServer   Component = "server"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds logger configuration
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatText,
		Output: os.Stderr,
	}
}

// New creates a logrus logger from config
func New(cfg *Config) (*logrus.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := logrus.New()
	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	case FormatText, "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return l, nil
}

// WithComponent scopes a logger to a component. A nil logger yields a
// discarding one so packages can be used without wiring logging.
func WithComponent(l logrus.FieldLogger, c Component) logrus.FieldLogger {
	if l == nil {
		l = Discard()
	}
	return l.WithField("component", string(c))
}

// Discard returns a logger that drops everything
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
