package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moebius-network/moebius/common/middleware"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{"json", "json", func(t *testing.T, out string) { assert.Contains(t, out, `"msg":"hello"`) }},
		{"default is json", "", func(t *testing.T, out string) { assert.Contains(t, out, `"msg":"hello"`) }},
		{"text", "text", func(t *testing.T, out string) { assert.Contains(t, out, "msg=hello") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(&buf, slog.LevelInfo, tt.format).Info("hello")
			tt.check(t, buf.String())
		})
	}
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "json")

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithContext(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		wantReq   string
		wantCycle string
	}{
		{"empty", context.Background(), "", ""},
		{"request id", context.WithValue(context.Background(), middleware.RequestIDKey, "req-1"), "req-1", ""},
		{"cycle id", ContextWithCycle(context.Background(), "cycle-9"), "", "cycle-9"},
		{
			"both",
			ContextWithCycle(context.WithValue(context.Background(), middleware.RequestIDKey, "req-2"), "cycle-3"),
			"req-2",
			"cycle-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, slog.LevelInfo, "json")
			logger.InfoContext(tt.ctx, "cycle done")

			entry := decodeLine(t, &buf)
			if tt.wantReq == "" {
				assert.NotContains(t, entry, FieldRequestID)
			} else {
				assert.Equal(t, tt.wantReq, entry[FieldRequestID])
			}
			if tt.wantCycle == "" {
				assert.NotContains(t, entry, FieldCycle)
			} else {
				assert.Equal(t, tt.wantCycle, entry[FieldCycle])
			}
		})
	}
}

func TestContextLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug, "json")
	ctx := ContextWithCycle(context.Background(), "c")

	for _, tt := range []struct {
		level string
		log   func(context.Context, string, ...any)
	}{
		{"DEBUG", logger.DebugContext},
		{"INFO", logger.InfoContext},
		{"WARN", logger.WarnContext},
		{"ERROR", logger.ErrorContext},
	} {
		buf.Reset()
		tt.log(ctx, "msg", "k", "v")
		entry := decodeLine(t, &buf)
		assert.Equal(t, tt.level, entry["level"])
		assert.Equal(t, "v", entry["k"])
		assert.Equal(t, "c", entry[FieldCycle])
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json").With(Task("oracle"))
	logger.Info("tick")

	assert.Equal(t, "oracle", decodeLine(t, &buf)[FieldTask])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	require.NotNil(t, Default().Logger)
	Discard().Info("nowhere")
}
