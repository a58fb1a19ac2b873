// Package logger builds the application's slog loggers.
//
// Output goes to stderr, stdout or a lumberjack-rotated file. Run, trace and
// coin identifiers travel in the context and are attached to every record
// written through WithContext or a ComponentLogger.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tomx220052/cryptoprice/internal/config"
)

type ctxKey string

// Context keys double as the attribute names written to the log.
const (
	traceIDKey   ctxKey = "trace_id"
	runIDKey     ctxKey = "run_id"
	operationKey ctxKey = "operation"
	coinKey      ctxKey = "coin"
)

var contextKeys = []ctxKey{traceIDKey, runIDKey, operationKey, coinKey}

// LoggerManager owns the log writer and hands out loggers sharing one handler.
type LoggerManager struct {
	base   *slog.Logger
	writer io.WriteCloser

	mu         sync.Mutex
	components map[string]*slog.Logger
}

// ComponentLogger is a logger tagged with a component name.
type ComponentLogger struct {
	*slog.Logger
	component string
}

// NewLoggerManager opens the output named by cfg.Output.
func NewLoggerManager(cfg config.LoggingConfig) (*LoggerManager, error) {
	w, err := openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	return build(cfg, w), nil
}

// NewLoggerManagerWithWriter ignores cfg.Output and writes to w. Close leaves
// w open.
func NewLoggerManagerWithWriter(cfg config.LoggingConfig, w io.Writer) *LoggerManager {
	return build(cfg, keepOpen{w})
}

func build(cfg config.LoggingConfig, w io.WriteCloser) *LoggerManager {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   ParseLevel(cfg.Level) == slog.LevelDebug,
		ReplaceAttr: normalizeAttr,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	if len(cfg.ContextFields) > 0 {
		static := make([]slog.Attr, 0, len(cfg.ContextFields))
		for k, v := range cfg.ContextFields {
			static = append(static, slog.String(k, v))
		}
		h = h.WithAttrs(static)
	}

	return &LoggerManager{
		base:       slog.New(h),
		writer:     w,
		components: make(map[string]*slog.Logger),
	}
}

// normalizeAttr renders times in UTC and levels in upper case.
func normalizeAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(a.Key, a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(a.Key, strings.ToUpper(lvl.String()))
		}
	}
	return a
}

func openOutput(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "", "stderr":
		return keepOpen{os.Stderr}, nil
	case "stdout":
		return keepOpen{os.Stdout}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("output %q needs a file path", cfg.Output)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}, nil
	}
	return nil, fmt.Errorf("unknown log output %q", cfg.Output)
}

// keepOpen turns a writer the manager does not own into a no-op closer.
type keepOpen struct{ io.Writer }

func (keepOpen) Close() error { return nil }

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// GetLogger returns the root logger.
func (lm *LoggerManager) GetLogger() *slog.Logger {
	return lm.base
}

// GetComponentLogger returns the cached logger for component, creating it on
// first use.
func (lm *LoggerManager) GetComponentLogger(component string) *ComponentLogger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	l, ok := lm.components[component]
	if !ok {
		l = lm.base.With(slog.String("component", component))
		lm.components[component] = l
	}
	return &ComponentLogger{Logger: l, component: component}
}

// WithContext returns the root logger carrying the identifiers stored in ctx.
func (lm *LoggerManager) WithContext(ctx context.Context) *slog.Logger {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		return lm.base.With(attrs...)
	}
	return lm.base
}

// Close flushes and closes a file output.
func (lm *LoggerManager) Close() error {
	if lm.writer == nil {
		return nil
	}
	return lm.writer.Close()
}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	for _, k := range contextKeys {
		if v, _ := ctx.Value(k).(string); v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	return attrs
}

func stringValue(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// NewRunID returns a random identifier for a fetch or batch run.
func NewRunID() string {
	return uuid.NewString()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey, operation)
}

func WithCoin(ctx context.Context, coinID string) context.Context {
	return context.WithValue(ctx, coinKey, coinID)
}

func GetTraceID(ctx context.Context) string { return stringValue(ctx, traceIDKey) }
func GetRunID(ctx context.Context) string   { return stringValue(ctx, runIDKey) }
func GetCoin(ctx context.Context) string    { return stringValue(ctx, coinKey) }

// Component returns the component name.
func (cl *ComponentLogger) Component() string {
	return cl.component
}

func (cl *ComponentLogger) WithCoin(coinID string) *slog.Logger {
	return cl.With(slog.String(string(coinKey), coinID))
}

func (cl *ComponentLogger) WithRunID(runID string) *slog.Logger {
	return cl.With(slog.String(string(runIDKey), runID))
}

// ErrorWithContext logs err at error level with the identifiers from ctx.
func (cl *ComponentLogger) ErrorWithContext(ctx context.Context, msg string, err error, args ...any) {
	cl.Error(msg, append(append(contextAttrs(ctx), slog.Any("error", err)), args...)...)
}

// InfoWithContext logs at info level with the identifiers from ctx.
func (cl *ComponentLogger) InfoWithContext(ctx context.Context, msg string, args ...any) {
	cl.Info(msg, append(contextAttrs(ctx), args...)...)
}

// LogOperation runs fn between a start record and a completion or failure
// record that carries the elapsed time. fn's error is returned unchanged.
func (cl *ComponentLogger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	op := slog.String(string(operationKey), operation)
	cl.InfoWithContext(ctx, "operation started", op)

	start := time.Now()
	err := fn()
	elapsed := slog.Duration("duration", time.Since(start))

	if err != nil {
		cl.ErrorWithContext(ctx, "operation failed", err, op, elapsed)
		return err
	}
	cl.InfoWithContext(ctx, "operation completed", op, elapsed)
	return nil
}

// NewTraceLogger stores a fresh trace ID in ctx. Records written through the
// *WithContext methods of the returned logger with that ctx carry the ID.
func NewTraceLogger(ctx context.Context, lm *LoggerManager, component string) (*ComponentLogger, context.Context) {
	return lm.GetComponentLogger(component), WithTraceID(ctx, uuid.NewString())
}
