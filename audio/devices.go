package audio

import (
	"fmt"
	"strings"
)

// Device backends.
const (
	BackendExec      = "exec"
	BackendPortAudio = "portaudio"
)

// DeviceConfig selects and configures the audio device backend.
type DeviceConfig struct {
	Backend string
	Format  Format

	// exec backend
	FFmpegPath  string
	FFplayPath  string
	InputFormat string
	InputDevice string
}

// Devices bundles the microphone and speaker of one backend.
type Devices struct {
	Microphone Microphone
	Speaker    Speaker
	closeFn    func() error
}

// Close releases backend-wide resources.
func (d *Devices) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// OpenDevices builds the devices for cfg.Backend.
func OpenDevices(cfg DeviceConfig) (*Devices, error) {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = DefaultCaptureFormat
	}
	switch strings.ToLower(cfg.Backend) {
	case "", BackendExec:
		return &Devices{
			Microphone: &FFmpegMicrophone{
				Binary:      cfg.FFmpegPath,
				InputFormat: cfg.InputFormat,
				InputDevice: cfg.InputDevice,
				PCM:         cfg.Format,
			},
			Speaker: &FFplaySpeaker{Binary: cfg.FFplayPath},
		}, nil
	case BackendPortAudio:
		return openPortAudio(cfg)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}
