package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInitWriter_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l := InitWriter(&buf, "signalbot", slog.LevelInfo)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	ctx := ForCandle(context.Background(), "BTCUSDT", 1700000000000)
	slog.Debug("hidden")
	slog.Info("candle processed", LogWithTrace(ctx)...)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "signalbot" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["trace_id"] != "BTCUSDT-1700000000000" {
		t.Errorf("trace_id = %v", rec["trace_id"])
	}
	if rec["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v", rec["symbol"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "ETHUSDT-42")
	if tid := TraceID(ctx); tid != "ETHUSDT-42" {
		t.Errorf("expected 'ETHUSDT-42', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	if tid := GenerateTraceID("BTCUSDT", 1700000000000); tid != "BTCUSDT-1700000000000" {
		t.Errorf("unexpected trace id %q", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	if attrs := LogWithTrace(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs without candle context, got %v", attrs)
	}

	attrs := LogWithTrace(WithTraceID(context.Background(), "abc-123"))
	if len(attrs) != 1 {
		t.Fatalf("expected trace id only, got %v", attrs)
	}

	attrs = LogWithTrace(ForCandle(context.Background(), "SOLUSDT", 1))
	if len(attrs) != 2 {
		t.Fatalf("expected trace id and symbol, got %v", attrs)
	}
}
