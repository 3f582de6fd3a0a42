// Package logger sets up JSON structured logging with log/slog and carries
// per-candle context (trace ID and symbol) through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	symbolKey  ctxKey = "symbol"
)

// Init creates a JSON logger on stdout for service and installs it as the
// slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit output.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID derives a trace ID from a symbol and a candle open time.
// Format: "{symbol}-{tsMillis}", so every event of one candle shares it.
func GenerateTraceID(symbol string, tsMillis int64) string {
	return fmt.Sprintf("%s-%d", symbol, tsMillis)
}

// ForCandle tags ctx with the symbol and the candle's trace ID.
func ForCandle(ctx context.Context, symbol string, tsMillis int64) context.Context {
	ctx = context.WithValue(ctx, symbolKey, symbol)
	return WithTraceID(ctx, GenerateTraceID(symbol, tsMillis))
}

// LogWithTrace returns slog attributes for the trace ID and symbol in ctx.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	var attrs []any
	if tid := TraceID(ctx); tid != "" {
		attrs = append(attrs, slog.String("trace_id", tid))
	}
	if sym, ok := ctx.Value(symbolKey).(string); ok && sym != "" {
		attrs = append(attrs, slog.String("symbol", sym))
	}
	return attrs
}
