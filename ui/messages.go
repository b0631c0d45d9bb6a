package ui

import (
	"github.com/testing-zone/Valper-AI/manual"
)

// StateMsg is sent when the controller changes state.
type StateMsg struct {
	From  string
	To    string
	Cause string
}

// StatusMsg carries the status line.
type StatusMsg struct {
	Status string
	Error  bool
}

// TurnMsg is sent when a turn is appended to the conversation.
type TurnMsg struct {
	Role  string
	Text  string
	Index int
}

// ClearedMsg is sent when the conversation is reset.
type ClearedMsg struct {
	Dropped int
}

// HealthMsg carries a fresh readiness report.
type HealthMsg struct {
	Status   string
	STTReady bool
	TTSReady bool
}

// LevelMsg carries the microphone level of the latest chunk.
type LevelMsg struct {
	Level float64
}

// ManualDoneMsg is sent when a manual synthesis run finishes.
type ManualDoneMsg struct {
	Text       string
	Transcript string
	Accuracy   float64
	Outcome    string
}

// actionMsg reports the result of a keyboard action.
type actionMsg struct {
	action string
	err    error
}

// manualMsg reports the result of a manual run started from the UI.
type manualMsg struct {
	result *manual.Result
	err    error
}
