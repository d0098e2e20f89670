// Package observability provides structured logging for the slide deck services.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogEvent is a log entry under construction. Field methods chain and the
// entry is written by Msg or Msgf; on a disabled level every call is a no-op.
type LogEvent = zerolog.Event

// Logger wraps zerolog with job and component tagging.
type Logger struct {
	zl zerolog.Logger
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
}

// NewLogger creates a Logger. Output defaults to stdout.
func NewLogger(cfg LogConfig) *Logger {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	return &Logger{zl: ctx.Logger()}
}

// DefaultLogger logs info and above to stderr in console format.
func DefaultLogger() *Logger {
	return NewLogger(LogConfig{
		Level:       "info",
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "slide-deck",
	})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithJob returns a logger tagged with a job identifier.
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{zl: l.zl.With().Str("job_id", jobID).Logger()}
}

// WithComponent returns a logger tagged with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *Logger) Debug() *LogEvent { return l.zl.Debug() }
func (l *Logger) Info() *LogEvent  { return l.zl.Info() }
func (l *Logger) Warn() *LogEvent  { return l.zl.Warn() }
func (l *Logger) Error() *LogEvent { return l.zl.Error() }

// parseLevel accepts zerolog level names plus "warning" and "off".
// Anything unrecognised logs at info.
func parseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	switch name {
	case "":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	case "off":
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
