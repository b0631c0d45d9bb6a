package events

import (
	"time"
)

// EventType identifies the type of event emitted by the client.
type EventType string

const (
	// EventStateChanged marks an interaction state transition.
	EventStateChanged EventType = "state.changed"
	// EventStatusChanged carries the operator-facing status line.
	EventStatusChanged EventType = "status.changed"

	// EventTurnAppended marks a turn added to the conversation log.
	EventTurnAppended EventType = "turn.appended"
	// EventLogCleared marks an operator reset of the conversation.
	EventLogCleared EventType = "log.cleared"

	// EventPipelineFailed marks a failed pipeline stage.
	EventPipelineFailed EventType = "pipeline.failed"

	// EventCaptureStarted marks the microphone being opened.
	EventCaptureStarted EventType = "capture.started"
	// EventCaptureChunk carries one buffered chunk of microphone audio.
	EventCaptureChunk EventType = "capture.chunk"
	// EventCaptureFinished marks the microphone being released.
	EventCaptureFinished EventType = "capture.finished"

	// EventPlaybackStarted marks a playback attempt starting.
	EventPlaybackStarted EventType = "playback.started"
	// EventPlaybackFinished carries the terminal event of a playback attempt.
	EventPlaybackFinished EventType = "playback.finished"

	// EventRemoteCallCompleted marks a successful backend round trip.
	EventRemoteCallCompleted EventType = "remote.call.completed"
	// EventRemoteCallFailed marks a failed backend round trip.
	EventRemoteCallFailed EventType = "remote.call.failed"

	// EventHealthUpdated carries a fresh backend health report.
	EventHealthUpdated EventType = "health.updated"

	// EventManualCompleted marks the end of a manual synthesis run.
	EventManualCompleted EventType = "manual.completed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a client event delivered to listeners.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(eventType EventType, sessionID string, data EventData) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      data,
	}
}

type baseEventData struct{}

func (baseEventData) eventData() {}

// StateChangedData contains data for state transition events.
type StateChangedData struct {
	baseEventData
	From  string `json:"from"`
	To    string `json:"to"`
	Cause string `json:"cause"`
}

// StatusChangedData contains the status line shown to the operator.
type StatusChangedData struct {
	baseEventData
	Status string `json:"status"`
	Error  bool   `json:"error,omitempty"`
}

// TurnAppendedData describes a turn added to the log.
type TurnAppendedData struct {
	baseEventData
	TurnID string `json:"turn_id"`
	Role   string `json:"role"`
	Text   string `json:"text"`
	Index  int    `json:"index"`
}

// LogClearedData reports how many turns were dropped by a reset.
type LogClearedData struct {
	baseEventData
	Dropped int `json:"dropped"`
}

// PipelineFailedData describes a stage failure.
type PipelineFailedData struct {
	baseEventData
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CaptureData describes microphone activity.
type CaptureData struct {
	baseEventData
	Bytes    int           `json:"bytes"`
	Level    float64       `json:"level,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// PlaybackData describes a playback attempt. Outcome is empty for start
// events and one of completed, failed or stopped for terminal events.
type PlaybackData struct {
	baseEventData
	AttemptID string `json:"attempt_id"`
	Source    string `json:"source,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// RemoteCallData describes one backend round trip.
type RemoteCallData struct {
	baseEventData
	Operation  string        `json:"operation"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Cached     bool          `json:"cached,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// HealthData carries the backend readiness report.
type HealthData struct {
	baseEventData
	Status   string `json:"status"`
	STTReady bool   `json:"stt_ready"`
	TTSReady bool   `json:"tts_ready"`
}

// ManualCompletedData summarises a manual synthesis run.
type ManualCompletedData struct {
	baseEventData
	Text       string  `json:"text"`
	Transcript string  `json:"transcript,omitempty"`
	Accuracy   float64 `json:"accuracy,omitempty"`
	Outcome    string  `json:"outcome"`
}
