package audio

import (
	"errors"
	"fmt"
)

// Common audio errors.
var (
	// ErrAlreadyCapturing is returned when a capture is already open in this process.
	ErrAlreadyCapturing = errors.New("audio capture already in progress")

	// ErrNotCapturing is returned by End when Begin was never called.
	ErrNotCapturing = errors.New("audio capture not started")

	// ErrEmptyRecording is returned by End when no samples were captured.
	ErrEmptyRecording = errors.New("recording contains no audio")

	// ErrEmptyArtifact is returned by Play for a nil or empty artifact.
	ErrEmptyArtifact = errors.New("audio artifact is empty")

	// ErrSessionClosed is returned when using a closed playback session.
	ErrSessionClosed = errors.New("audio session closed")

	// ErrUnsupportedFormat is returned when a payload cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Device names used in DeviceError.
const (
	DeviceMicrophone = "microphone"
	DeviceSpeaker    = "speaker"
)

// DeviceError reports an unavailable or inaccessible audio device.
type DeviceError struct {
	// Device is DeviceMicrophone or DeviceSpeaker.
	Device string

	// Op is the failed operation (open, read, play).
	Op string

	// Err is the underlying error.
	Err error
}

// NewDeviceError creates a DeviceError, returning err unchanged when it
// already is one.
func NewDeviceError(device, op string, err error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Device: device, Op: op, Err: err}
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Device, e.Op)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Device, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}
