package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

type fakeStream struct {
	data     chan []byte
	fail     chan error
	closed   chan struct{}
	once     sync.Once
	closeCnt int
	mu       sync.Mutex
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		data:   make(chan []byte),
		fail:   make(chan error),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Read(b []byte) (int, error) {
	select {
	case c := <-s.data:
		return copy(b, c), nil
	case err := <-s.fail:
		return 0, err
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closeCnt++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCnt
}

type fakeMic struct {
	openErr error
	opened  int
	last    *fakeStream
}

func (m *fakeMic) Format() Format { return DefaultCaptureFormat }

func (m *fakeMic) Open(context.Context) (io.ReadCloser, error) {
	m.opened++
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.last = newFakeStream()
	return m.last, nil
}

// blockingSpeaker plays until finish receives a result or ctx is cancelled.
type blockingSpeaker struct {
	started chan string
	finish  chan error
}

func newBlockingSpeaker() *blockingSpeaker {
	return &blockingSpeaker{
		started: make(chan string, 8),
		finish:  make(chan error),
	}
}

func (sp *blockingSpeaker) Play(ctx context.Context, a *Artifact) error {
	sp.started <- a.ID()
	select {
	case err := <-sp.finish:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errDeviceGone = errors.New("device gone")
