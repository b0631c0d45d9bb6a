package audio

import (
	"encoding/binary"
	"fmt"
)

const (
	wavHeaderSize = 44
	wavFormatPCM  = 1

	// pcmLevelScale maps average absolute PCM16 amplitude to 0..1 for speech.
	pcmLevelScale = 10000.0
)

// Format describes raw PCM audio.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultCaptureFormat is 16 kHz mono PCM16, what the STT backend expects.
var DefaultCaptureFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BytesPerSecond returns the PCM data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// WrapPCMAsWAV wraps little-endian signed PCM data in a 44-byte WAV header.
func WrapPCMAsWAV(pcmData []byte, f Format) []byte {
	dataSize := len(pcmData)
	blockAlign := f.Channels * f.BitDepth / 8

	wav := make([]byte, wavHeaderSize+dataSize)

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(36+dataSize))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], 16)
	binary.LittleEndian.PutUint16(wav[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(wav[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(wav[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], uint16(f.BitDepth))

	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(dataSize))
	copy(wav[44:], pcmData)

	return wav
}

// ParseWAV extracts the PCM payload and format of a RIFF/WAVE file. Chunks
// other than fmt and data are skipped. Only integer PCM is supported.
func ParseWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: not a RIFF/WAVE payload", ErrUnsupportedFormat)
	}

	var f Format
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != wavFormatPCM {
				return nil, Format{}, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			f.BitDepth = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt", ErrUnsupportedFormat)
			}
			return data[body:end], f, nil
		}

		// chunks are word aligned
		pos = end + size%2
	}
	return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrUnsupportedFormat)
}

// Level returns the normalized energy (0..1) of a PCM16 little-endian chunk.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if s < 0 {
			sum -= int64(s)
		} else {
			sum += int64(s)
		}
	}
	level := float64(sum) / float64(n) / pcmLevelScale
	if level > 1 {
		level = 1
	}
	return level
}
