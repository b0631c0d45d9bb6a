//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// portAudioFramesPerBuffer is 100ms at 16 kHz input.
	portAudioFramesPerBuffer = 1600
	// portAudioOutputFrames is 40ms at 24 kHz output.
	portAudioOutputFrames = 960
)

func openPortAudio(cfg DeviceConfig) (*Devices, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Devices{
		Microphone: &PortAudioMicrophone{PCM: cfg.Format},
		Speaker:    &PortAudioSpeaker{},
		closeFn:    portaudio.Terminate,
	}, nil
}

// PortAudioMicrophone reads the default input device through PortAudio.
type PortAudioMicrophone struct {
	PCM Format
}

// Format implements Microphone.
func (m *PortAudioMicrophone) Format() Format { return m.PCM }

// Open implements Microphone.
func (m *PortAudioMicrophone) Open(_ context.Context) (io.ReadCloser, error) {
	in := make([]int16, portAudioFramesPerBuffer*m.PCM.Channels)
	stream, err := portaudio.OpenDefaultStream(m.PCM.Channels, 0, float64(m.PCM.SampleRate), portAudioFramesPerBuffer, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	return &portAudioInput{stream: stream, in: in}, nil
}

type portAudioInput struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	in      []int16
	pending []byte
	closed  bool
}

func (p *portAudioInput) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		if p.closed {
			return 0, io.EOF
		}
		if err := p.stream.Read(); err != nil {
			if p.closed {
				return 0, io.EOF
			}
			return 0, err
		}
		p.pending = int16ToBytes(p.in)
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *portAudioInput) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.stream.Stop()
	return p.stream.Close()
}

// PortAudioSpeaker plays PCM WAV artifacts on the default output device.
type PortAudioSpeaker struct{}

// Play implements Speaker.
func (sp *PortAudioSpeaker) Play(ctx context.Context, a *Artifact) error {
	pcm, f, err := ParseWAV(a.Bytes())
	if err != nil {
		return err
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("%w: %d-bit pcm", ErrUnsupportedFormat, f.BitDepth)
	}

	out := make([]int16, portAudioOutputFrames*f.Channels)
	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), portAudioOutputFrames, out)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	frameBytes := len(out) * 2
	for off := 0; off < len(pcm); off += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range out {
			j := off + i*2
			if j+1 < len(pcm) {
				out[i] = int16(binary.LittleEndian.Uint16(pcm[j:]))
			} else {
				out[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("output stream write: %w", err)
		}
	}
	return nil
}

func int16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
