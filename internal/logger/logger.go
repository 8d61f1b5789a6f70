// Package logger provides structured logging for usbackup using zerolog.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the package-level logger instance used throughout the application.
var Log zerolog.Logger

// sink is the writer Init last configured Log with, kept so WithBuffer can
// fan out to both the process-wide stream and a per-run buffer.
var sink io.Writer = os.Stdout

// Init configures the global logger based on the provided level and format.
// Level accepts the CLI vocabulary from (DEBUG/INFO/WARNING/ERROR/CRITICAL),
// case-insensitively. Format "text" wraps out in zerolog.ConsoleWriter; anything
// else emits raw JSON lines.
func Init(level, format string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}

	var l zerolog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = zerolog.DebugLevel
	case "WARNING", "WARN":
		l = zerolog.WarnLevel
	case "ERROR":
		l = zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		l = zerolog.FatalLevel
	default:
		l = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(l)

	if strings.ToLower(format) == "text" {
		sink = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	} else {
		sink = out
	}
	Log = zerolog.New(sink).With().Timestamp().Logger()
}

// With returns a sub-logger with the given contextual fields. Empty fields
// are omitted.
func With(job, source, storage, runID string) zerolog.Logger {
	ctx := Log.With()
	if job != "" {
		ctx = ctx.Str("job", job)
	}
	if source != "" {
		ctx = ctx.Str("source", source)
	}
	if storage != "" {
		ctx = ctx.Str("storage", storage)
	}
	if runID != "" {
		ctx = ctx.Str("run_id", runID)
	}
	return ctx.Logger()
}

// WithBuffer returns a sub-logger that writes to both the global sink and buf,
// so a single run's log lines can travel with its RunResult (,
// "log-buffer capture per run") independent of the process-wide log stream.
func WithBuffer(job, source, storage, runID string, buf io.Writer) zerolog.Logger {
	multi := zerolog.MultiLevelWriter(sink, buf)
	ctx := zerolog.New(multi).With().Timestamp()
	if job != "" {
		ctx = ctx.Str("job", job)
	}
	if source != "" {
		ctx = ctx.Str("source", source)
	}
	if storage != "" {
		ctx = ctx.Str("storage", storage)
	}
	if runID != "" {
		ctx = ctx.Str("run_id", runID)
	}
	return ctx.Logger()
}
