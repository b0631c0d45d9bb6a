package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/testing-zone/Valper-AI/audio"
)

// Common errors for remote calls.
var (
	// ErrEmptyAudio is returned when an empty artifact is sent for transcription.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrEmptyText is returned when empty text is sent for synthesis or conversation.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLong is returned when text exceeds the backend's field limit.
	ErrTextTooLong = errors.New("text exceeds maximum length")

	// ErrEmptyTranscript is returned when the STT service recognised nothing.
	ErrEmptyTranscript = errors.New("no speech recognised")
)

// TransportError reports a request that never produced an HTTP response:
// connection refused, DNS failure, timeout, cancelled context.
type TransportError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: network error calling %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NetworkError is the name the client's status messages use for TransportError.
type NetworkError = TransportError

// ServiceError reports a non-success HTTP response.
type ServiceError struct {
	Op     string
	Status int
	// Message is the backend's detail text, or the status text when absent.
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: service error %d: %s", e.Op, e.Status, e.Message)
}

// MalformedResponseError reports a response whose shape was not understood.
type MalformedResponseError struct {
	Op     string
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Detail)
}

// Unwrap returns the underlying error.
func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// TranscriptionError represents a failed transcribe call.
type TranscriptionError struct {
	// Code is the HTTP status code as text, empty when there was no response.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// NewTranscriptionError creates a new TranscriptionError.
func NewTranscriptionError(code, message string, cause error) *TranscriptionError {
	return &TranscriptionError{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("transcription error [%s]: %s", e.Code, e.Message)
	}
	return "transcription error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Cause
}

// SynthesisError represents a failed synthesize call.
type SynthesisError struct {
	Code    string
	Message string
	Cause   error
}

// NewSynthesisError creates a new SynthesisError.
func NewSynthesisError(code, message string, cause error) *SynthesisError {
	return &SynthesisError{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("synthesis error [%s]: %s", e.Code, e.Message)
	}
	return "synthesis error: " + e.Message
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// stageError wraps cause in the stage error type for op, carrying over the
// status code and message of a ServiceError.
func stageError(op string, cause error) error {
	code, msg := "", cause.Error()
	var se *ServiceError
	if errors.As(cause, &se) {
		code, msg = fmt.Sprintf("%d", se.Status), se.Message
	}
	switch op {
	case OpTranscribe:
		return NewTranscriptionError(code, msg, cause)
	case OpSynthesize:
		return NewSynthesisError(code, msg, cause)
	default:
		return cause
	}
}

// Error kinds reported by Kind.
const (
	KindTransport  = "transport"
	KindTimeout    = "timeout"
	KindService    = "service"
	KindMalformed  = "malformed"
	KindDevice     = "device"
	KindValidation = "validation"
	KindUnknown    = "unknown"
)

// Kind classifies an error for metrics and status messages.
func Kind(err error) string {
	var (
		se *ServiceError
		me *MalformedResponseError
		te *TransportError
		de *audio.DeviceError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &de):
		return KindDevice
	case errors.As(err, &se):
		return KindService
	case errors.As(err, &me):
		return KindMalformed
	case errors.As(err, &te):
		return KindTransport
	case errors.Is(err, ErrEmptyAudio), errors.Is(err, ErrEmptyText),
		errors.Is(err, ErrTextTooLong), errors.Is(err, ErrEmptyTranscript):
		return KindValidation
	default:
		return KindUnknown
	}
}
