package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCMAsWAV_Header(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := WrapPCMAsWAV(pcm, DefaultCaptureFormat)

	require.Len(t, wav, 48)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	wav := WrapPCMAsWAV([]byte{5, 6}, Format{SampleRate: 24000, Channels: 1, BitDepth: 16})

	// splice a LIST chunk between fmt and data
	list := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0)
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	pcm, f, err := ParseWAV(spliced)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, pcm)
	assert.Equal(t, 24000, f.SampleRate)
}

func TestParseWAV_Rejects(t *testing.T) {
	_, _, err := ParseWAV([]byte("ID3 mp3 data here"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	noData := WrapPCMAsWAV(nil, DefaultCaptureFormat)[:36]
	_, _, err = ParseWAV(noData)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLevel(t *testing.T) {
	assert.Zero(t, Level(nil))

	loud := make([]byte, 4)
	neg := int16(-20000)
	binary.LittleEndian.PutUint16(loud[0:], uint16(neg))
	binary.LittleEndian.PutUint16(loud[2:], uint16(20000))
	assert.Equal(t, 1.0, Level(loud))

	quiet := make([]byte, 2)
	binary.LittleEndian.PutUint16(quiet, 1000)
	assert.InDelta(t, 0.1, Level(quiet), 1e-9)
}

func TestArtifactIsImmutable(t *testing.T) {
	src := []byte{1, 2, 3}
	a := NewArtifact(src, "")
	src[0] = 9

	assert.Equal(t, ContentTypeOctetStream, a.ContentType())
	b := a.Bytes()
	assert.Equal(t, []byte{1, 2, 3}, b)
	b[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, a.Bytes())
	assert.Equal(t, 3, a.Len())
}

func TestFFmpegMicrophoneArgs(t *testing.T) {
	m := &FFmpegMicrophone{}
	args, err := m.args("linux")
	require.NoError(t, err)
	assert.Contains(t, args, "pulse")
	assert.Contains(t, args, "16000")

	args, err = m.args("darwin")
	require.NoError(t, err)
	assert.Contains(t, args, ":0")

	_, err = m.args("plan9")
	assert.Error(t, err)

	m.InputFormat, m.InputDevice = "alsa", "hw:1"
	args, err = m.args("plan9")
	require.NoError(t, err)
	assert.Contains(t, args, "hw:1")
}

func TestOpenDevices(t *testing.T) {
	d, err := OpenDevices(DeviceConfig{})
	require.NoError(t, err)
	assert.IsType(t, &FFmpegMicrophone{}, d.Microphone)
	assert.Equal(t, DefaultCaptureFormat, d.Microphone.Format())
	assert.NoError(t, d.Close())

	_, err = OpenDevices(DeviceConfig{Backend: "alsa-direct"})
	assert.Error(t, err)
}
