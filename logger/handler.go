package logger

import (
	"context"
	"log/slog"
)

// ContextHandler stamps every record with the turn, session, stage and
// request identifiers found on the context, and redacts credentials from
// error strings, which often embed request URLs.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	out.AddAttrs(ExtractLoggingFields(ctx).attrs()...)

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" {
			switch v := a.Value.Any().(type) {
			case error:
				a.Value = slog.StringValue(RedactSensitiveData(v.Error()))
			case string:
				a.Value = slog.StringValue(RedactSensitiveData(v))
			}
		}
		out.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
