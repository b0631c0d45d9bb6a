package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// FFmpegMicrophone captures PCM by running ffmpeg against the platform's
// default input (PulseAudio on Linux, AVFoundation on macOS).
type FFmpegMicrophone struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string

	// InputFormat overrides the ffmpeg -f input demuxer (pulse, alsa, avfoundation).
	InputFormat string

	// InputDevice overrides the ffmpeg -i input device.
	InputDevice string

	// StartTimeout bounds how long Open waits for the first audio before
	// accepting a running but silent process. Defaults to two seconds.
	StartTimeout time.Duration

	PCM Format
}

// Format implements Microphone.
func (m *FFmpegMicrophone) Format() Format {
	if m.PCM.SampleRate == 0 {
		return DefaultCaptureFormat
	}
	return m.PCM
}

// Open implements Microphone. It returns once ffmpeg has produced audio or
// StartTimeout has passed with the process still running; an ffmpeg that
// exits before producing audio fails Open with its stderr.
func (m *FFmpegMicrophone) Open(ctx context.Context) (io.ReadCloser, error) {
	binary := m.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%s is required for microphone capture: %w", binary, err)
	}
	args, err := m.args(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, args...) //nolint:gosec // binary and args come from local configuration
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg capture: %w", err)
	}

	p := newProcessStream(cmd, stdout, stderr)
	if err := p.awaitAudio(ctx, m.startTimeout()); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (m *FFmpegMicrophone) startTimeout() time.Duration {
	if m.StartTimeout > 0 {
		return m.StartTimeout
	}
	return defaultStartTimeout
}

func (m *FFmpegMicrophone) args(goos string) ([]string, error) {
	inputFormat, inputDevice := m.InputFormat, m.InputDevice
	if inputFormat == "" {
		switch goos {
		case "darwin":
			inputFormat = "avfoundation"
		case "linux":
			inputFormat = "pulse"
		default:
			return nil, fmt.Errorf("microphone capture via ffmpeg is not supported on %s; set audio.input_format", goos)
		}
	}
	if inputDevice == "" {
		inputDevice = "default"
		if inputFormat == "avfoundation" {
			inputDevice = ":0"
		}
	}

	f := m.Format()
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", inputFormat, "-i", inputDevice,
		"-ac", strconv.Itoa(f.Channels), "-ar", strconv.Itoa(f.SampleRate),
		"-f", "s16le", "-",
	}, nil
}

const (
	defaultStartTimeout = 2 * time.Second
	stopGrace           = 2 * time.Second
	stderrTail          = 2048
)

// tailBuffer keeps the last stderrTail bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrTail; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// processStream is the stdout of a capture process.
type processStream struct {
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *tailBuffer

	// ready is closed once the first read of stdout returns.
	ready   chan struct{}
	peekErr error

	drained   chan struct{}
	drainOnce sync.Once
	closing   atomic.Bool

	waitOnce sync.Once
	waitErr  error
}

func newProcessStream(cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer) *processStream {
	p := &processStream{
		cmd:     cmd,
		out:     bufio.NewReaderSize(stdout, captureReadSize),
		stderr:  stderr,
		ready:   make(chan struct{}),
		drained: make(chan struct{}),
	}
	go func() {
		defer close(p.ready)
		if _, err := p.out.Peek(1); err != nil {
			p.peekErr = err
			p.markDrained()
		}
	}()
	return p
}

// awaitAudio waits for the first audio bytes. A process still running
// without output after timeout is accepted.
func (p *processStream) awaitAudio(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.ready:
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.peekErr == nil {
		return nil
	}
	if err := p.exitError(); err != nil {
		return err
	}
	return fmt.Errorf("ffmpeg capture ended without audio: %w", p.peekErr)
}

// wait reaps the process once. Callers must have drained stdout first.
func (p *processStream) wait() error {
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return p.waitErr
}

// exitError describes a failed exit, including ffmpeg's stderr.
func (p *processStream) exitError() error {
	err := p.wait()
	if err == nil {
		return nil
	}
	if msg := p.stderr.String(); msg != "" {
		return fmt.Errorf("ffmpeg capture failed: %w: %s", err, msg)
	}
	return fmt.Errorf("ffmpeg capture failed: %w", err)
}

func (p *processStream) markDrained() {
	p.drainOnce.Do(func() { close(p.drained) })
}

func (p *processStream) Read(b []byte) (int, error) {
	<-p.ready
	n, err := p.out.Read(b)
	if err == nil {
		return n, nil
	}
	p.markDrained()
	if errors.Is(err, io.EOF) && !p.closing.Load() {
		if exitErr := p.exitError(); exitErr != nil {
			return n, exitErr
		}
	}
	return n, err
}

// Close asks ffmpeg to stop and waits for the reader to drain what it
// already wrote before reaping the process. ffmpeg is killed if it does not
// stop within stopGrace.
func (p *processStream) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	if p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			_ = p.cmd.Process.Kill()
		}
	}

	timer := time.NewTimer(stopGrace)
	defer timer.Stop()
	select {
	case <-p.drained:
	case <-timer.C:
		_ = p.cmd.Process.Kill()
	}
	_ = p.wait()
	return nil
}

// FFplaySpeaker plays artifacts by piping them into ffplay, which handles
// any container or codec the synthesis backend returns.
type FFplaySpeaker struct {
	// Binary is the ffplay executable. Defaults to "ffplay".
	Binary string
}

// Play implements Speaker.
func (sp *FFplaySpeaker) Play(ctx context.Context, a *Artifact) error {
	binary := sp.Binary
	if binary == "" {
		binary = "ffplay"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("%s is required for playback: %w", binary, err)
	}

	cmd := exec.CommandContext(ctx, binary, //nolint:gosec // binary comes from local configuration
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-i", "pipe:0",
	)
	cmd.Stdin = a.Reader()
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	err := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("ffplay exited with code %d", exitErr.ExitCode())
	}
	return err
}
