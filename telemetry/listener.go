package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/testing-zone/Valper-AI/events"
)

const idleState = "idle"

// turnSpans tracks the open spans of one session.
type turnSpans struct {
	turn  trace.Span
	ctx   context.Context //nolint:containedctx // needed to parent stage spans
	stage trace.Span
	err   string
}

// Listener converts interaction events into spans: one span per turn,
// from leaving Idle to returning to it, with a child span per state.
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
type Listener struct {
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[string]*turnSpans
}

// NewListener creates a listener that records spans with tracer.
func NewListener(tracer trace.Tracer) *Listener {
	return &Listener{
		tracer:   tracer,
		sessions: make(map[string]*turnSpans),
	}
}

// OnEvent handles a single event.
func (l *Listener) OnEvent(evt *events.Event) {
	switch data := evt.Data.(type) {
	case events.StateChangedData:
		l.onState(evt.SessionID, data)
	case events.PipelineFailedData:
		l.onFailure(evt.SessionID, data)
	case events.TurnAppendedData:
		l.onTurn(evt.SessionID, data)
	}
}

func (l *Listener) onState(sessionID string, data events.StateChangedData) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.sessions[sessionID]
	if ts != nil && ts.stage != nil {
		ts.stage.End()
		ts.stage = nil
	}

	if data.To == idleState {
		if ts != nil {
			ts.turn.SetAttributes(attribute.String("turn.end_cause", data.Cause))
			if ts.err != "" {
				ts.turn.SetStatus(codes.Error, ts.err)
			} else {
				ts.turn.SetStatus(codes.Ok, "")
			}
			ts.turn.End()
			delete(l.sessions, sessionID)
		}
		return
	}

	if ts == nil {
		ctx, span := l.tracer.Start(context.Background(), "valper.turn",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String("session.id", sessionID)),
		)
		ts = &turnSpans{turn: span, ctx: ctx}
		l.sessions[sessionID] = ts
	}
	_, ts.stage = l.tracer.Start(ts.ctx, "valper.state."+data.To,
		trace.WithAttributes(attribute.String("state.from", data.From)),
	)
}

func (l *Listener) onFailure(sessionID string, data events.PipelineFailedData) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.sessions[sessionID]
	if ts == nil {
		// Failures from Idle (device errors) have no turn span.
		return
	}
	ts.err = data.Message
	ts.turn.SetAttributes(
		attribute.String("error.stage", data.Stage),
		attribute.String("error.kind", data.Kind),
	)
	if ts.stage != nil {
		ts.stage.SetStatus(codes.Error, data.Message)
	}
}

func (l *Listener) onTurn(sessionID string, data events.TurnAppendedData) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts := l.sessions[sessionID]; ts != nil {
		ts.turn.AddEvent("turn.appended", trace.WithAttributes(
			attribute.String("turn.id", data.TurnID),
			attribute.String("turn.role", data.Role),
			attribute.Int("turn.index", data.Index),
		))
	}
}

// Flush ends every open span, for use at shutdown.
func (l *Listener) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ts := range l.sessions {
		if ts.stage != nil {
			ts.stage.End()
		}
		ts.turn.End()
		delete(l.sessions, id)
	}
}
