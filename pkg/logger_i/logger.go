package logger_i

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// TraceKey is the context key the middleware stores the request trace id under.
type TraceKey struct{}

type Logger struct {
	inner *slog.Logger
}

// Init installs the process wide handler: JSON for production, text for local runs.
func Init(isProd bool, prodLevel slog.Level) {
	options := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}

	var handler slog.Handler
	if isProd {
		options.Level = prodLevel
		handler = slog.NewJSONHandler(os.Stdout, options)
	} else {
		handler = slog.NewTextHandler(os.Stdout, options)
	}
	slog.SetDefault(slog.New(handler))
}

func NewLogger(section string) *Logger {
	return &Logger{
		inner: slog.Default().With("component", section),
	}
}

func (l *Logger) Info(msg string, args ...any) {
	l.logWithSource(slog.LevelInfo, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.logWithSource(slog.LevelError, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.logWithSource(slog.LevelWarn, msg, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.logWithSource(slog.LevelDebug, msg, args...)
}

func (l *Logger) logWithSource(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.inner.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers, logWithSource and the level wrapper so the record points at the caller
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.Add(args...)
	_ = l.inner.Handler().Handle(ctx, record)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		inner: l.inner.With(args...),
	}
}

// WithTrace tags the logger with the trace id carried by ctx, if any.
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	traceId, ok := ctx.Value(TraceKey{}).(string)
	if !ok || traceId == "" {
		return l
	}
	return l.With("traceId", traceId)
}

// ContextWithTrace returns a child context carrying the trace id.
func ContextWithTrace(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, TraceKey{}, traceId)
}

// TraceId returns the trace id stored in ctx or an empty string.
func TraceId(ctx context.Context) string {
	traceId, _ := ctx.Value(TraceKey{}).(string)
	return traceId
}
