package logger

import (
	"context"
	"log/slog"
)

type fieldsKey struct{}

// LoggingFields are the correlation identifiers carried on a context and
// added to every record logged with it.
type LoggingFields struct {
	SessionID string
	TurnID    string
	// Stage is the pipeline stage: capture, transcribe, respond, synthesize, play or manual.
	Stage     string
	RequestID string
}

func (f LoggingFields) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 4)
	for _, kv := range [...][2]string{
		{"session_id", f.SessionID},
		{"turn_id", f.TurnID},
		{"stage", f.Stage},
		{"request_id", f.RequestID},
	} {
		if kv[1] != "" {
			out = append(out, slog.String(kv[0], kv[1]))
		}
	}
	return out
}

// update stores a modified copy of the fields on ctx; parents are never
// mutated.
func update(ctx context.Context, set func(*LoggingFields)) context.Context {
	f := ExtractLoggingFields(ctx)
	set(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithSessionID tags ctx with the client session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *LoggingFields) { f.SessionID = id })
}

// WithTurnID tags ctx with a conversation turn.
func WithTurnID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *LoggingFields) { f.TurnID = id })
}

// WithStage tags ctx with a pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return update(ctx, func(f *LoggingFields) { f.Stage = stage })
}

// WithRequestID tags ctx with a backend request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return update(ctx, func(f *LoggingFields) { f.RequestID = id })
}

// WithLoggingContext overlays the non-empty fields of fields on ctx.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	return update(ctx, func(f *LoggingFields) {
		if fields.SessionID != "" {
			f.SessionID = fields.SessionID
		}
		if fields.TurnID != "" {
			f.TurnID = fields.TurnID
		}
		if fields.Stage != "" {
			f.Stage = fields.Stage
		}
		if fields.RequestID != "" {
			f.RequestID = fields.RequestID
		}
	})
}

// ExtractLoggingFields returns the fields set on ctx, zero if none.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	if ctx == nil {
		return LoggingFields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(LoggingFields)
	return f
}
