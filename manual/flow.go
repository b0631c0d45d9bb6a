// Package manual synthesizes operator-supplied text, plays it on the shared
// speaker and optionally checks the audio by transcribing it back.
package manual

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/controller"
	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
	"github.com/testing-zone/Valper-AI/remote"
)

// DefaultTestPhrase is spoken when the request carries no text.
const DefaultTestPhrase = "Hello! I am Valper, your AI voice assistant. How can I help you today?"

// ErrTTSNotReady is returned when the text-to-speech service is not known
// to be ready.
var ErrTTSNotReady = errors.New("speech synthesis service is not ready")

// Floor grants exclusive use of the speaker and reports backend readiness.
type Floor interface {
	Acquire(ctx context.Context) (*controller.Lease, error)
	Readiness() (remote.Health, bool)
}

// Synthesizer turns text into speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*audio.Artifact, error)
}

// Transcriber turns speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, a *audio.Artifact) (string, error)
}

// Player plays one artifact at a time.
type Player interface {
	Play(a *audio.Artifact) (*audio.Attempt, error)
	Stop()
}

// Request is one manual synthesis run.
type Request struct {
	Text  string
	Voice string
	// Verify transcribes the synthesized audio while it plays.
	Verify bool
}

// Result describes a finished run.
type Result struct {
	Text       string
	Voice      string
	AudioBytes int
	Outcome    audio.Outcome
	// Transcript and Accuracy are set when verification was requested.
	Transcript string
	Accuracy   float64
	Verified   bool
	Duration   time.Duration
}

// Flow runs manual synthesis requests.
type Flow struct {
	floor       Floor
	synthesizer Synthesizer
	transcriber Transcriber
	player      Player
	bus         *events.EventBus
	sessionID   string
}

// Option configures the Flow.
type Option func(*Flow)

// WithEventBus publishes playback and completion events on bus.
func WithEventBus(bus *events.EventBus, sessionID string) Option {
	return func(f *Flow) {
		f.bus = bus
		f.sessionID = sessionID
	}
}

// NewFlow creates a manual synthesis flow. transcriber may be nil when
// verification is never requested.
func NewFlow(floor Floor, synth Synthesizer, transcriber Transcriber, player Player, opts ...Option) *Flow {
	f := &Flow{
		floor:       floor,
		synthesizer: synth,
		transcriber: transcriber,
		player:      player,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run synthesizes req.Text, plays it to the end and returns the outcome.
// The floor is held from synthesis until playback finishes, so recording
// cannot start in between.
func (f *Flow) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = DefaultTestPhrase
	}
	voice := req.Voice
	if voice == "" {
		voice = remote.DefaultVoice
	}
	if req.Verify && f.transcriber == nil {
		return nil, errors.New("verification requested without a transcriber")
	}

	if h, known := f.floor.Readiness(); !known || !h.TTSReady {
		return nil, ErrTTSNotReady
	}
	lease, err := f.floor.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	ctx = logger.WithStage(ctx, "manual")
	logger.InfoContext(ctx, "Manual synthesis", "voice", voice, "text_len", len(text), "verify", req.Verify)

	artifact, err := f.synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	att, err := f.player.Play(artifact)
	if err != nil {
		return nil, err
	}
	f.publish(events.EventPlaybackStarted, events.PlaybackData{
		AttemptID: att.ID(), Source: "manual", Bytes: artifact.Len(),
	})

	res := &Result{Text: text, Voice: voice, AudioBytes: artifact.Len()}

	var g errgroup.Group
	var playErr error
	g.Go(func() error {
		ev := f.awaitPlayback(ctx, att)
		res.Outcome = ev.Outcome
		if ev.Outcome == audio.OutcomeFailed {
			playErr = ev.Err
			if playErr == nil {
				playErr = fmt.Errorf("playback failed: %s", ev.Reason)
			}
		}
		return nil
	})
	if req.Verify {
		g.Go(func() error {
			transcript, err := f.transcriber.Transcribe(ctx, artifact)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			res.Transcript = transcript
			res.Accuracy = Accuracy(text, transcript)
			res.Verified = true
			return nil
		})
	}
	verifyErr := g.Wait()
	res.Duration = time.Since(start)

	outcome := string(res.Outcome)
	if err := errors.Join(playErr, verifyErr); err != nil {
		logger.WarnContext(ctx, "Manual synthesis finished with errors", "outcome", outcome, "error", err)
		f.publishDone(res)
		return res, err
	}
	logger.InfoContext(ctx, "Manual synthesis finished",
		"outcome", outcome, "accuracy", res.Accuracy, "duration", res.Duration)
	f.publishDone(res)
	return res, nil
}

// awaitPlayback waits for the terminal event, stopping playback when ctx
// ends first.
func (f *Flow) awaitPlayback(ctx context.Context, att *audio.Attempt) audio.PlaybackEvent {
	select {
	case ev := <-att.Done():
		return ev
	case <-ctx.Done():
		f.player.Stop()
		return <-att.Done()
	}
}

func (f *Flow) publishDone(res *Result) {
	f.publish(events.EventManualCompleted, events.ManualCompletedData{
		Text:       res.Text,
		Transcript: res.Transcript,
		Accuracy:   res.Accuracy,
		Outcome:    string(res.Outcome),
	})
}

func (f *Flow) publish(t events.EventType, data events.EventData) {
	if f.bus == nil {
		return
	}
	f.bus.Publish(events.New(t, f.sessionID, data))
}
