// Package logging wraps logrus with the engine's logging conventions:
// structured fields per tenant/production/fact, configurable level and
// format, matching the teacher stack's logger package.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger so call sites depend on this package, not
// logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config configures a Logger.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// New constructs a Logger from cfg, defaulting to info/text/stdout for any
// zero-valued field.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// NewDefault constructs an info/text/stdout Logger tagged with name.
func NewDefault(name string) *Logger {
	l := New(Config{Level: "info", Format: "text"})
	l.AddHook(componentHook{name: name})
	return l
}

// componentHook sets a fixed "component" field on every entry.
type componentHook struct{ name string }

func (componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(e *logrus.Entry) error {
	e.Data["component"] = h.name
	return nil
}

// WithTenant returns a log entry scoped to a tenant key, the field every
// engine command log line carries.
func (l *Logger) WithTenant(tenantKey string) *logrus.Entry {
	return l.WithField("tenant", tenantKey)
}

// WithField returns a new log entry with a field.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new log entry with multiple fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}
