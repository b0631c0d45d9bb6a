//go:build !portaudio

package audio

import "errors"

func openPortAudio(DeviceConfig) (*Devices, error) {
	return nil, errors.New("built without PortAudio support; rebuild with -tags portaudio")
}
