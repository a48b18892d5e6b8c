package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewTraceHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{})))
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())

	return entry
}

func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer

	newTestLogger(&buf).InfoContext(context.Background(), "submitted", "gid", "2089b05ecca3d829")

	entry := decodeEntry(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
	assert.Equal(t, "submitted", entry["msg"])
	assert.Equal(t, "2089b05ecca3d829", entry["gid"])
}

func TestTraceHandler_WithRecordingSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "submit")
	defer span.End()

	var buf bytes.Buffer

	newTestLogger(&buf).InfoContext(ctx, "submitted")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestTraceHandler_RequestID(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithRequestID(context.Background(), "req-42")
	newTestLogger(&buf).InfoContext(ctx, "handled")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer

	h := NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "tracker")})
	require.IsType(t, &TraceHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("daemon")
	require.IsType(t, &TraceHandler{}, withGroup)

	slog.New(withGroup).InfoContext(context.Background(), "polled", "count", 3)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"component":"tracker"`), out)
	assert.True(t, strings.Contains(out, `"daemon":{"count":3}`), out)
}

func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithLogger(context.Background(), newTestLogger(&buf))
	ctx, logger := With(ctx, "download_id", "abc")

	logger.InfoContext(ctx, "first")
	assert.Same(t, logger, LoggerFromContext(ctx))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "abc", entry["download_id"])
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
}
