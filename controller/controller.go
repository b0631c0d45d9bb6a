// Package controller implements the interaction state machine of the voice
// client. A single event loop goroutine owns the state; operator actions,
// backend results and playback completions are messages posted into its
// inbox and applied one at a time.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/conversation"
	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
	"github.com/testing-zone/Valper-AI/remote"
)

var (
	// ErrBusy is returned when an action is not allowed in the current state.
	ErrBusy = errors.New("controller is busy")

	// ErrSTTNotReady is returned when capture is requested while the
	// speech-to-text service is not known to be ready.
	ErrSTTNotReady = errors.New("speech recognition service is not ready")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller is closed")
)

// Capturer records one utterance at a time.
type Capturer interface {
	Begin(ctx context.Context) error
	End() (*audio.Artifact, error)
	Abort()
	Active() bool
}

// Player plays one artifact at a time.
type Player interface {
	Play(a *audio.Artifact) (*audio.Attempt, error)
	Stop()
	Active() bool
}

// Backend is the remote speech and conversation service.
type Backend interface {
	Health(ctx context.Context) (remote.Health, error)
	Transcribe(ctx context.Context, a *audio.Artifact) (string, error)
	Converse(ctx context.Context, text string, history []conversation.Turn) (remote.Reply, error)
	Synthesize(ctx context.Context, text, voice string) (*audio.Artifact, error)
}

const inboxSize = 16

// Option configures the Controller.
type Option func(*Controller)

// WithEventBus publishes state, status, turn and failure events on bus.
func WithEventBus(bus *events.EventBus, sessionID string) Option {
	return func(c *Controller) {
		c.bus = bus
		c.sessionID = sessionID
	}
}

// WithVoice sets the synthesis voice for replies.
func WithVoice(voice string) Option {
	return func(c *Controller) {
		c.voice = voice
	}
}

// WithStageTimeout bounds each backend call. Zero means no bound.
func WithStageTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.stageTimeout = d
	}
}

// WithLog uses log as the conversation history.
func WithLog(log *conversation.Log) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHealthInterval refreshes backend health periodically.
func WithHealthInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.healthInterval = d
	}
}

// Controller is the single authority over the interaction state.
type Controller struct {
	capture Capturer
	player  Player
	backend Backend
	log     *conversation.Log

	bus            *events.EventBus
	sessionID      string
	voice          string
	stageTimeout   time.Duration
	healthInterval time.Duration
	healthSeq      atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan message
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Owned by the loop goroutine.
	state   State
	gen     uint64
	attempt string
	floor   string
	health  *remote.Health
	// healthApplied is the sequence number of the probe behind health.
	healthApplied uint64

	// Read-side copy for State, Status and Readiness.
	mu   sync.RWMutex
	view view
}

type view struct {
	state  State
	status string
	health *remote.Health
}

// New creates a controller and starts its event loop.
func New(capture Capturer, player Player, backend Backend, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		capture:   capture,
		player:    player,
		backend:   backend,
		log:       conversation.NewLog(),
		sessionID: uuid.NewString(),
		voice:     remote.DefaultVoice,
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan message, inboxSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx = logger.WithSessionID(c.ctx, c.sessionID)
	c.view = view{state: StateIdle, status: StateIdle.Status()}

	go c.loop()
	if c.healthInterval > 0 {
		go c.pollHealth()
	}
	return c
}

// SessionID returns the identifier stamped on this controller's events.
func (c *Controller) SessionID() string { return c.sessionID }

// Log returns the conversation history.
func (c *Controller) Log() *conversation.Log { return c.log }

// State returns the current interaction state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.state
}

// Status returns the operator-facing status line.
func (c *Controller) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.status
}

// Readiness returns the last health report and whether one was received.
func (c *Controller) Readiness() (remote.Health, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.view.health == nil {
		return remote.Health{}, false
	}
	return *c.view.health, true
}

// PrimaryControl is the operator's single button: start recording when
// idle, finish recording when capturing, interrupt playback when playing.
// It returns ErrBusy while the backend is working.
func (c *Controller) PrimaryControl(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, primaryMsg{reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Clear stops playback, aborts any recording, empties the conversation and
// returns to Idle. Backend results still in flight are discarded.
func (c *Controller) Clear(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, clearMsg{reply: reply}); err != nil {
		return err
	}
	return c.await(ctx, reply)
}

// Close stops the event loop, releases the devices and cancels in-flight
// backend calls. It is safe to call more than once.
func (c *Controller) Close() error {
	c.once.Do(func() {
		c.cancel()
		close(c.quit)
		<-c.stopped
		c.capture.Abort()
		c.player.Stop()
	})
	return nil
}

func (c *Controller) post(ctx context.Context, m message) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver posts a result from a background goroutine. Results posted after
// Close are dropped.
func (c *Controller) deliver(m message) {
	select {
	case c.inbox <- m:
	case <-c.quit:
	}
}

func (c *Controller) loop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.quit:
			return
		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

func (c *Controller) handle(m message) {
	switch m := m.(type) {
	case primaryMsg:
		m.reply <- c.onPrimary()
	case clearMsg:
		c.onClear()
		m.reply <- nil
	case transcribedMsg:
		c.onTranscribed(m)
	case repliedMsg:
		c.onReplied(m)
	case synthesizedMsg:
		c.onSynthesized(m)
	case playbackDoneMsg:
		c.onPlaybackDone(m)
	case healthMsg:
		c.onHealth(m)
	case acquireMsg:
		m.reply <- c.onAcquire()
	case releaseMsg:
		c.onRelease(m)
	}
}

// transition moves to state to and sets status. Callers are on the loop.
func (c *Controller) transition(to State, cause, status string, isErr bool) {
	from := c.state
	c.state = to

	c.mu.Lock()
	c.view.state = to
	c.view.status = status
	c.mu.Unlock()

	if from != to {
		logger.Transition(c.ctx, from.String(), to.String(), cause)
		c.publish(events.EventStateChanged, events.StateChangedData{
			From: from.String(), To: to.String(), Cause: cause,
		})
	}
	c.publish(events.EventStatusChanged, events.StatusChangedData{Status: status, Error: isErr})
}

func (c *Controller) enter(to State, cause string) {
	c.transition(to, cause, to.Status(), false)
}

// fail returns to Idle and surfaces err as the status line.
func (c *Controller) fail(stage string, err error) {
	ctx := logger.WithStage(c.ctx, stage)
	logger.ErrorContext(ctx, "Pipeline stage failed", "error", err)
	c.publish(events.EventPipelineFailed, events.PipelineFailedData{
		Stage:   stage,
		Kind:    remote.Kind(err),
		Message: err.Error(),
	})
	c.transition(StateIdle, "error", ErrorStatus(err), true)
}

func (c *Controller) publish(t events.EventType, data events.EventData) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.New(t, c.sessionID, data))
}

func (c *Controller) onClear() {
	c.player.Stop()
	c.capture.Abort()
	dropped := c.log.Clear()
	c.gen++
	c.attempt = ""

	logger.InfoContext(c.ctx, "Conversation cleared", "dropped", dropped)
	c.publish(events.EventLogCleared, events.LogClearedData{Dropped: dropped})
	c.enter(StateIdle, "clear")
}
