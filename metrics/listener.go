package metrics

import (
	"github.com/testing-zone/Valper-AI/events"
)

const healthyStatus = "healthy"

// Listener records client events as Prometheus metrics. Register it with
// an EventBus using SubscribeAll.
type Listener struct{}

// NewListener creates a new Listener.
func NewListener() *Listener {
	return &Listener{}
}

// Handle processes an event and records relevant metrics.
func (l *Listener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch data := event.Data.(type) {
	case events.StateChangedData:
		RecordTransition(data.From, data.To)
	case events.RemoteCallData:
		l.handleRemoteCall(event.Type, data)
	case events.PipelineFailedData:
		RecordPipelineFailure(data.Stage, data.Kind)
	case events.TurnAppendedData:
		RecordTurn(data.Role)
	case events.PlaybackData:
		if event.Type == events.EventPlaybackFinished && data.Outcome != "" {
			RecordPlayback(data.Outcome)
		}
	case events.CaptureData:
		if event.Type == events.EventCaptureChunk {
			RecordCapture(data.Bytes, data.Level)
		}
	case events.HealthData:
		RecordHealth(data.Status == healthyStatus, data.STTReady, data.TTSReady)
	case events.ManualCompletedData:
		if data.Transcript != "" {
			RecordManualAccuracy(data.Accuracy)
		}
	default:
		// Ignore events that don't have metrics
	}
}

func (l *Listener) handleRemoteCall(t events.EventType, data events.RemoteCallData) {
	if data.Cached {
		RecordCacheHit()
		return
	}
	status := statusSuccess
	if t == events.EventRemoteCallFailed {
		status = statusError
		RecordRemoteError(data.Operation, data.ErrorKind)
	}
	RecordRemoteCall(data.Operation, status, data.Duration.Seconds())
}

// Listener returns an events.Listener function that can be registered with
// an EventBus.
func (l *Listener) Listener() events.Listener {
	return l.Handle
}
