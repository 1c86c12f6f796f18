// Package logging builds the process-wide *slog.Logger: a JSON or text
// handler over stdout, optionally tee'd to a lumberjack-rotated file, with
// an OpenTelemetry bridge so log records carry the active trace/span IDs —
// the same slog-first approach the teacher passes into its fx providers
// (internal/handler/amqp/router.go takes *slog.Logger directly).
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/webitel/fsmrun/internal/config"
)

// New builds a *slog.Logger per cfg. JSON selects slog's structured
// handler (production default); non-JSON uses slog's plain text handler,
// more suited to a developer's terminal. When cfg.FilePath is set, records
// are additionally written to a lumberjack-managed rotating file.
func New(cfg config.LoggingConfig, serviceName string) *slog.Logger {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stdout
	if cfg.FilePath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	return logger.With("service", serviceName)
}

// WithOtelBridge wraps base so every record is also handed to an otelslog
// bridge logger, which uses the global OpenTelemetry LoggerProvider.
// internal/telemetry installs only tracer and meter providers, not a
// LoggerProvider.
func WithOtelBridge(base *slog.Logger, serviceName string) *slog.Logger {
	bridge := otelslog.NewLogger(serviceName)
	return slog.New(fanoutHandler{base.Handler(), bridge.Handler()})
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// fanoutHandler duplicates every record to both the human-facing handler and
// the otel bridge handler, since slog has no built-in multi-handler.
type fanoutHandler struct {
	a, b slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.a.Enabled(ctx, level) || f.b.Enabled(ctx, level)
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := f.a.Handle(ctx, record.Clone()); err != nil {
		return err
	}
	return f.b.Handle(ctx, record.Clone())
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanoutHandler{f.a.WithAttrs(attrs), f.b.WithAttrs(attrs)}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return fanoutHandler{f.a.WithGroup(name), f.b.WithGroup(name)}
}
