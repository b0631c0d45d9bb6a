package controller

// State is the interaction state of the controller.
type State int

const (
	// StateIdle waits for the operator.
	StateIdle State = iota
	// StateCapturing holds the microphone open.
	StateCapturing
	// StateTranscribing waits on the speech-to-text service.
	StateTranscribing
	// StateAwaitingResponse waits on the conversation service.
	StateAwaitingResponse
	// StateSynthesizing waits on the text-to-speech service.
	StateSynthesizing
	// StatePlaying plays the synthesized reply.
	StatePlaying
)

const unknownState = "unknown"

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateTranscribing:
		return "transcribing"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	default:
		return unknownState
	}
}

// Status returns the operator-facing status line for the state.
func (s State) Status() string {
	switch s {
	case StateIdle:
		return "Ready"
	case StateCapturing:
		return "Recording..."
	case StateTranscribing:
		return "Processing speech..."
	case StateAwaitingResponse:
		return "Generating response..."
	case StateSynthesizing:
		return "Synthesizing speech..."
	case StatePlaying:
		return "Playing response..."
	default:
		return unknownState
	}
}

// Busy reports whether the state is waiting on the backend. Busy states
// cannot be interrupted by the operator.
func (s State) Busy() bool {
	return s == StateTranscribing || s == StateAwaitingResponse || s == StateSynthesizing
}

// stage names the pipeline step a state waits on, used in failure events.
func (s State) stage() string {
	switch s {
	case StateCapturing:
		return "capture"
	case StateTranscribing:
		return "transcribe"
	case StateAwaitingResponse:
		return "converse"
	case StateSynthesizing:
		return "synthesize"
	case StatePlaying:
		return "playback"
	default:
		return s.String()
	}
}

// ErrorStatus formats a failure as a status line.
func ErrorStatus(err error) string {
	return "Error: " + err.Error()
}
