package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/testing-zone/Valper-AI/events"
)

// EventAdapter converts bus events to bubbletea messages.
type EventAdapter struct {
	send func(tea.Msg)
}

// NewEventAdapter creates an adapter that forwards events to program.
func NewEventAdapter(program *tea.Program) *EventAdapter {
	return &EventAdapter{send: program.Send}
}

// NewEventAdapterFunc creates an adapter that hands messages to send.
func NewEventAdapterFunc(send func(tea.Msg)) *EventAdapter {
	return &EventAdapter{send: send}
}

// Subscribe subscribes the adapter to an event bus.
func (a *EventAdapter) Subscribe(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.SubscribeAll(a.HandleEvent)
}

// HandleEvent forwards the event when the UI cares about it.
func (a *EventAdapter) HandleEvent(event *events.Event) {
	if msg := MapEvent(event); msg != nil && a.send != nil {
		a.send(msg)
	}
}

// MapEvent converts an event to a UI message, or nil.
func MapEvent(event *events.Event) tea.Msg {
	switch d := event.Data.(type) {
	case events.StateChangedData:
		return StateMsg{From: d.From, To: d.To, Cause: d.Cause}
	case events.StatusChangedData:
		return StatusMsg{Status: d.Status, Error: d.Error}
	case events.TurnAppendedData:
		return TurnMsg{Role: d.Role, Text: d.Text, Index: d.Index}
	case events.LogClearedData:
		return ClearedMsg{Dropped: d.Dropped}
	case events.HealthData:
		return HealthMsg{Status: d.Status, STTReady: d.STTReady, TTSReady: d.TTSReady}
	case events.CaptureData:
		if event.Type == events.EventCaptureChunk {
			return LevelMsg{Level: d.Level}
		}
		if event.Type == events.EventCaptureFinished {
			return LevelMsg{}
		}
	case events.ManualCompletedData:
		return ManualDoneMsg{Text: d.Text, Transcript: d.Transcript, Accuracy: d.Accuracy, Outcome: d.Outcome}
	}
	return nil
}
