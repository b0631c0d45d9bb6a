// Package logger provides structured logging for the voice client.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - remote backend request/response logging
//   - interaction state transitions
//   - automatic redaction of tokens and keys
//   - contextual fields (turn, session, stage) carried on context.Context
//
// All exported functions use the global DefaultLogger, which can be
// redirected with SetOutput (the terminal UI sends logs to a file) and
// re-levelled with SetLevel or SetVerbose.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the process-wide logger. LOG_LEVEL sets its initial
	// level.
	DefaultLogger *slog.Logger

	mu    sync.Mutex
	level slog.LevelVar
)

func init() {
	level.Set(ParseLevel(os.Getenv("LOG_LEVEL")))
	SetOutput(os.Stderr)
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// SetLevel changes the minimum level of subsequent records.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetVerbose switches between debug and info level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log output. A nil writer discards all records.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// Transition logs an interaction state change at debug level.
func Transition(ctx context.Context, from, to, cause string) {
	DebugContext(ctx, "state transition", "from", from, "to", to, "cause", cause)
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
	regexp.MustCompile(`(?i)(api[_-]?key=)[^&\s]+`),
}

// RedactSensitiveData removes API keys and bearer tokens from strings.
// Keys keep their first four characters so they stay recognisable in logs.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer"):
				return "Bearer [REDACTED]"
			case strings.Contains(strings.ToLower(match), "key="):
				return match[:strings.Index(match, "=")+1] + "[REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			default:
				return "[REDACTED]"
			}
		})
	}
	return result
}

// APIRequest logs a backend request at debug level with redaction.
// It is a no-op when debug logging is disabled.
func APIRequest(ctx context.Context, operation, method, url string, body interface{}) {
	if !DefaultLogger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"operation", operation,
		"method", method,
		"url", RedactSensitiveData(url),
	)
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	DebugContext(ctx, "API request", attrs...)
}

// APIResponse logs a backend response at debug level. Failed calls are
// logged at error level regardless of the configured verbosity.
func APIResponse(ctx context.Context, operation string, statusCode int, body string, err error) {
	attrs := []any{"operation", operation, "status_code", statusCode}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		ErrorContext(ctx, "API response error", attrs...)
		return
	}
	if !DefaultLogger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}
	DebugContext(ctx, "API response", attrs...)
}
