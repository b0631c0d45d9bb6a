package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Outcome is the terminal result of a playback attempt.
type Outcome string

// Playback outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeStopped   Outcome = "stopped"
)

// PlaybackEvent is the single terminal event of a playback attempt.
type PlaybackEvent struct {
	AttemptID string
	Outcome   Outcome
	// Reason describes the failure for OutcomeFailed.
	Reason string
	Err    error
}

// Attempt is a handle on one Play call.
type Attempt struct {
	id       string
	cancel   context.CancelFunc
	stopped  atomic.Bool
	done     chan PlaybackEvent
	finished chan struct{}
}

// ID returns the attempt identifier.
func (a *Attempt) ID() string { return a.id }

// Done delivers exactly one terminal event for this attempt.
func (a *Attempt) Done() <-chan PlaybackEvent { return a.done }

func (a *Attempt) isFinished() bool {
	select {
	case <-a.finished:
		return true
	default:
		return false
	}
}

// PlaybackOption configures a PlaybackSession.
type PlaybackOption func(*PlaybackSession)

// WithPlaybackObserver registers a function receiving every terminal event
// of the session, in delivery order. The observer must not call back into
// the session.
func WithPlaybackObserver(fn func(PlaybackEvent)) PlaybackOption {
	return func(s *PlaybackSession) {
		s.observer = fn
	}
}

// PlaybackSession plays artifacts one at a time on a Speaker.
//
// Starting a new playback stops the current one first; the stopped attempt's
// terminal event is always delivered before the new attempt can produce any.
type PlaybackSession struct {
	speaker  Speaker
	observer func(PlaybackEvent)

	mu     sync.Mutex
	cur    *Attempt
	closed bool
}

// NewPlaybackSession creates a playback session on the given speaker.
func NewPlaybackSession(speaker Speaker, opts ...PlaybackOption) *PlaybackSession {
	s := &PlaybackSession{speaker: speaker}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Play starts asynchronous playback of a and returns its attempt handle.
func (s *PlaybackSession) Play(a *Artifact) (*Attempt, error) {
	if a.Len() == 0 {
		return nil, ErrEmptyArtifact
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	att := &Attempt{
		id:       uuid.NewString(),
		cancel:   cancel,
		done:     make(chan PlaybackEvent, 1),
		finished: make(chan struct{}),
	}
	s.cur = att
	go s.run(ctx, att, a)
	return att, nil
}

func (s *PlaybackSession) run(ctx context.Context, att *Attempt, a *Artifact) {
	defer close(att.finished)
	defer att.cancel()

	err := s.speaker.Play(ctx, a)

	ev := PlaybackEvent{AttemptID: att.id}
	switch {
	case att.stopped.Load():
		ev.Outcome = OutcomeStopped
	case err == nil:
		ev.Outcome = OutcomeCompleted
	case errors.Is(err, context.Canceled):
		ev.Outcome = OutcomeStopped
	default:
		ev.Outcome = OutcomeFailed
		ev.Reason = err.Error()
		ev.Err = NewDeviceError(DeviceSpeaker, "play", err)
	}

	if s.observer != nil {
		s.observer(ev)
	}
	att.done <- ev
}

// stopLocked cancels the current attempt and waits for its terminal event.
func (s *PlaybackSession) stopLocked() {
	att := s.cur
	if att == nil {
		return
	}
	s.cur = nil
	if att.isFinished() {
		return
	}
	att.stopped.Store(true)
	att.cancel()
	<-att.finished
}

// Stop interrupts the current playback. With nothing playing it does
// nothing and emits no event.
func (s *PlaybackSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Active reports whether an attempt is currently playing.
func (s *PlaybackSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && !s.cur.isFinished()
}

// Close stops any playback and rejects further Play calls.
func (s *PlaybackSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
	return nil
}
