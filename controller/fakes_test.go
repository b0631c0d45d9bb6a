package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/conversation"
	"github.com/testing-zone/Valper-AI/remote"
)

var errNoMic = errors.New("no microphone")

// fakeCapture records calls and flags any Begin made while the speaker is
// busy.
type fakeCapture struct {
	player *audio.PlaybackSession

	mu       sync.Mutex
	active   bool
	begins   int
	aborts   int
	beginErr error
	endErr   error
	overlap  bool
}

func (f *fakeCapture) Begin(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	if f.beginErr != nil {
		return f.beginErr
	}
	if f.player != nil && f.player.Active() {
		f.overlap = true
	}
	f.active = true
	return nil
}

func (f *fakeCapture) End() (*audio.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return nil, audio.ErrNotCapturing
	}
	f.active = false
	if f.endErr != nil {
		return nil, f.endErr
	}
	return audio.NewArtifact([]byte("RIFF....WAVE"), audio.ContentTypeWAV), nil
}

func (f *fakeCapture) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.aborts++
	}
	f.active = false
}

func (f *fakeCapture) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeCapture) beginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begins
}

// gatedSpeaker plays until finish is signalled or playback is cancelled.
type gatedSpeaker struct {
	started   chan struct{}
	finish    chan error
	cancelled atomic.Int32
	plays     atomic.Int32
}

func newGatedSpeaker() *gatedSpeaker {
	return &gatedSpeaker{
		started: make(chan struct{}, 8),
		finish:  make(chan error),
	}
}

func (s *gatedSpeaker) Play(ctx context.Context, _ *audio.Artifact) error {
	s.plays.Add(1)
	s.started <- struct{}{}
	select {
	case err := <-s.finish:
		return err
	case <-ctx.Done():
		s.cancelled.Add(1)
		return ctx.Err()
	}
}

// fakeBackend answers each call with a canned result. A non-nil gate for a
// call blocks it until the gate is closed or the context ends.
type fakeBackend struct {
	health    remote.Health
	healthErr error
	healthFn  func(ctx context.Context) (remote.Health, error)

	transcript    string
	transcribeErr error
	reply         string
	converseErr   error
	synthErr      error

	transcribeGate chan struct{}
	converseGate   chan struct{}

	mu      sync.Mutex
	history [][]conversation.Turn
	voices  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		health:     remote.Health{Status: remote.StatusHealthy, STTReady: true, TTSReady: true},
		transcript: "hello",
		reply:      "hi there",
	}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *fakeBackend) Health(ctx context.Context) (remote.Health, error) {
	if b.healthFn != nil {
		return b.healthFn(ctx)
	}
	if b.healthErr != nil {
		return remote.UnhealthyFallback(), b.healthErr
	}
	return b.health, nil
}

func (b *fakeBackend) Transcribe(ctx context.Context, _ *audio.Artifact) (string, error) {
	if err := wait(ctx, b.transcribeGate); err != nil {
		return "", err
	}
	if b.transcribeErr != nil {
		return "", b.transcribeErr
	}
	return b.transcript, nil
}

func (b *fakeBackend) Converse(ctx context.Context, text string, history []conversation.Turn) (remote.Reply, error) {
	b.mu.Lock()
	b.history = append(b.history, history)
	b.mu.Unlock()
	if err := wait(ctx, b.converseGate); err != nil {
		return remote.Reply{}, err
	}
	if b.converseErr != nil {
		return remote.Reply{}, b.converseErr
	}
	return remote.Reply{UserText: text, AssistantText: b.reply}, nil
}

func (b *fakeBackend) Synthesize(_ context.Context, _, voice string) (*audio.Artifact, error) {
	b.mu.Lock()
	b.voices = append(b.voices, voice)
	b.mu.Unlock()
	if b.synthErr != nil {
		return nil, b.synthErr
	}
	return audio.NewArtifact([]byte("speech"), "audio/wav"), nil
}

func (b *fakeBackend) histories() [][]conversation.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]conversation.Turn(nil), b.history...)
}
