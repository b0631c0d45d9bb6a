package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, script string) *FFmpegMicrophone {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755)) //nolint:gosec // test executable
	return &FFmpegMicrophone{Binary: path, InputFormat: "lavfi", StartTimeout: 5 * time.Second}
}

func TestFFmpegMicrophone_ExitBeforeAudioFailsBegin(t *testing.T) {
	mic := fakeFFmpeg(t, `echo "default: Connection refused" >&2
exit 1
`)
	s := NewCaptureSession(mic)

	err := s.Begin(context.Background())
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "open", de.Op)
	assert.Contains(t, err.Error(), "Connection refused")
	assert.False(t, s.Active())

	other := NewCaptureSession(&fakeMic{})
	require.NoError(t, other.Begin(context.Background()), "guard must be released")
	other.Abort()
}

func TestFFmpegMicrophone_EndKeepsTailWrittenOnInterrupt(t *testing.T) {
	mic := fakeFFmpeg(t, `trap 'printf "\003\000"; exit 255' INT
printf "\001\000\002\000"
while :; do sleep 0.05; done
`)
	s := NewCaptureSession(mic)
	require.NoError(t, s.Begin(context.Background()))

	art, err := s.End()
	require.NoError(t, err)
	pcm, _, err := ParseWAV(art.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, pcm)
}

func TestFFmpegMicrophone_ExitMidCaptureIsDeviceError(t *testing.T) {
	mic := fakeFFmpeg(t, `printf "\001\000"
echo "input device lost" >&2
exit 1
`)
	s := NewCaptureSession(mic)
	require.NoError(t, s.Begin(context.Background()))

	require.Eventually(t, func() bool {
		s.bufMu.Lock()
		defer s.bufMu.Unlock()
		return s.readErr != nil
	}, 5*time.Second, 10*time.Millisecond)

	_, err := s.End()
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "read", de.Op)
	assert.Contains(t, err.Error(), "input device lost")
}
