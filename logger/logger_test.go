package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, l slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(l)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(slog.LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetVerbose(t *testing.T) {
	buf := captureOutput(t, slog.LevelInfo)

	Debug("hidden")
	assert.Empty(t, buf.String())

	SetVerbose(true)
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestContextFieldsAreLogged(t *testing.T) {
	buf := captureOutput(t, slog.LevelInfo)

	ctx := WithLoggingContext(context.Background(), &LoggingFields{
		TurnID: "turn-1",
		Stage:  "transcribe",
	})
	InfoContext(ctx, "stage started", "bytes", 42)

	out := buf.String()
	assert.Contains(t, out, "turn_id=turn-1")
	assert.Contains(t, out, "stage=transcribe")
	assert.Contains(t, out, "bytes=42")
	assert.NotContains(t, out, "session_id")
}

func TestExtractLoggingFields(t *testing.T) {
	ctx := WithSessionID(context.Background(), "s-1")
	ctx = WithRequestID(ctx, "r-1")

	fields := ExtractLoggingFields(ctx)
	assert.Equal(t, "s-1", fields.SessionID)
	assert.Equal(t, "r-1", fields.RequestID)
	assert.Empty(t, fields.TurnID)

	assert.Equal(t, ctx, WithLoggingContext(ctx, nil))
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		contains string
		absent   string
	}{
		{"bearer", "Authorization: Bearer abc.def-123", "Bearer [REDACTED]", "abc.def-123"},
		{"openai key", "key sk-abcdefghijklmnopqrstuvwxyz0123456789", "sk-a...[REDACTED]", "xyz0123456789"},
		{"query key", "http://host/tts?api_key=secret&x=1", "api_key=[REDACTED]&x=1", "secret"},
		{"plain", "nothing to hide", "nothing to hide", "[REDACTED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactSensitiveData(tt.in)
			assert.Contains(t, got, tt.contains)
			assert.NotContains(t, got, tt.absent)
		})
	}
}

func TestAPIRequestOnlyAtDebug(t *testing.T) {
	buf := captureOutput(t, slog.LevelInfo)
	ctx := context.Background()

	APIRequest(ctx, "tts", "POST", "http://localhost:8000/api/v1/tts", map[string]string{"text": "hi"})
	assert.Empty(t, buf.String())

	SetLevel(slog.LevelDebug)
	APIRequest(ctx, "tts", "POST", "http://localhost:8000/api/v1/tts", map[string]string{"text": "hi"})
	assert.Contains(t, buf.String(), "operation=tts")
}

func TestAPIResponseErrorAlwaysLogged(t *testing.T) {
	buf := captureOutput(t, slog.LevelWarn)

	APIResponse(context.Background(), "stt", 500, "", errors.New("boom"))
	require.Contains(t, buf.String(), "API response error")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestSetOutputNilDiscards(t *testing.T) {
	SetOutput(nil)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	assert.NotPanics(t, func() { Error("dropped") })
}

func TestErrorAttrIsRedacted(t *testing.T) {
	buf := captureOutput(t, slog.LevelInfo)

	Error("request failed", "error", errors.New("GET http://x/api?api_key=secret123: refused"))
	out := buf.String()
	assert.Contains(t, out, "api_key=[REDACTED]")
	assert.NotContains(t, out, "secret123")
}

func TestWithStageDoesNotMutateParent(t *testing.T) {
	parent := WithSessionID(context.Background(), "s-1")
	child := WithStage(parent, "play")

	assert.Empty(t, ExtractLoggingFields(parent).Stage)
	assert.Equal(t, "play", ExtractLoggingFields(child).Stage)
	assert.Equal(t, "s-1", ExtractLoggingFields(child).SessionID)
}
