package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const captureReadSize = 3200 // 100ms of 16 kHz mono PCM16

// captureOpen guards the microphone: one capture per process.
var captureOpen atomic.Bool

// ChunkObserver receives each chunk of raw PCM as it is captured.
type ChunkObserver func(chunk []byte)

// CaptureOption configures a CaptureSession.
type CaptureOption func(*CaptureSession)

// WithChunkObserver registers a function called for every captured chunk.
// It runs on the capture goroutine and must not block.
func WithChunkObserver(fn ChunkObserver) CaptureOption {
	return func(s *CaptureSession) {
		s.onChunk = fn
	}
}

// CaptureSession records microphone audio between Begin and End and
// assembles it into a single WAV artifact.
type CaptureSession struct {
	mic     Microphone
	onChunk ChunkObserver

	mu       sync.Mutex
	stream   io.ReadCloser
	readDone chan struct{}
	started  time.Time

	bufMu   sync.Mutex
	buf     bytes.Buffer
	readErr error
}

// NewCaptureSession creates a capture session on the given microphone.
func NewCaptureSession(mic Microphone, opts ...CaptureOption) *CaptureSession {
	s := &CaptureSession{mic: mic}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin opens the microphone and starts buffering. It fails with a
// DeviceError when the device cannot be opened and with ErrAlreadyCapturing
// when a capture is already open anywhere in the process.
func (s *CaptureSession) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return ErrAlreadyCapturing
	}
	if !captureOpen.CompareAndSwap(false, true) {
		return ErrAlreadyCapturing
	}

	stream, err := s.mic.Open(ctx)
	if err != nil {
		captureOpen.Store(false)
		return NewDeviceError(DeviceMicrophone, "open", err)
	}

	s.bufMu.Lock()
	s.buf.Reset()
	s.readErr = nil
	s.bufMu.Unlock()

	s.stream = stream
	s.started = time.Now()
	s.readDone = make(chan struct{})
	go s.readLoop(stream, s.readDone)
	return nil
}

func (s *CaptureSession) readLoop(stream io.Reader, done chan struct{}) {
	defer close(done)
	buf := make([]byte, captureReadSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.bufMu.Lock()
			s.buf.Write(chunk)
			s.bufMu.Unlock()
			if s.onChunk != nil {
				s.onChunk(chunk)
			}
		}
		if err != nil {
			if !closedStream(err) {
				s.bufMu.Lock()
				s.readErr = err
				s.bufMu.Unlock()
			}
			return
		}
	}
}

// closedStream reports whether err only marks the end of the stream or a
// read cut short by our own Close.
func closedStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// release closes the stream, waits for the reader and frees the process
// guard. Callers hold s.mu.
func (s *CaptureSession) release() {
	_ = s.stream.Close()
	<-s.readDone
	s.stream = nil
	s.readDone = nil
	captureOpen.Store(false)
}

// End stops recording, releases the device and returns the recording as a
// WAV artifact. Calling End without Begin returns ErrNotCapturing.
func (s *CaptureSession) End() (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil, ErrNotCapturing
	}
	s.release()

	s.bufMu.Lock()
	pcm := s.buf.Bytes()
	readErr := s.readErr
	s.buf = bytes.Buffer{}
	s.bufMu.Unlock()

	if readErr != nil {
		return nil, NewDeviceError(DeviceMicrophone, "read", readErr)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyRecording
	}
	return NewArtifact(WrapPCMAsWAV(pcm, s.mic.Format()), ContentTypeWAV), nil
}

// Abort releases the device and drops anything recorded. It is a no-op when
// no capture is open.
func (s *CaptureSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return
	}
	s.release()

	s.bufMu.Lock()
	s.buf = bytes.Buffer{}
	s.bufMu.Unlock()
}

// Active reports whether the session holds the microphone.
func (s *CaptureSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Elapsed returns how long the current capture has been running.
func (s *CaptureSession) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return 0
	}
	return time.Since(s.started)
}
