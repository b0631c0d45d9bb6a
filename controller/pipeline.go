package controller

import (
	"context"
	"fmt"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/conversation"
	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
	"github.com/testing-zone/Valper-AI/remote"
)

type message interface{}

type primaryMsg struct {
	reply chan error
}

type clearMsg struct {
	reply chan error
}

// Pipeline results carry the generation they were started under.
type transcribedMsg struct {
	gen     uint64
	audioID string
	text    string
	err     error
}

type repliedMsg struct {
	gen   uint64
	reply remote.Reply
	err   error
}

type synthesizedMsg struct {
	gen      uint64
	artifact *audio.Artifact
	err      error
}

type playbackDoneMsg struct {
	attemptID string
	event     audio.PlaybackEvent
}

func (c *Controller) onPrimary() error {
	switch c.state {
	case StateIdle:
		return c.startCapture()
	case StateCapturing:
		c.finishCapture()
		return nil
	case StatePlaying:
		c.player.Stop()
		c.attempt = ""
		c.enter(StateIdle, "interrupted")
		return nil
	default:
		return ErrBusy
	}
}

func (c *Controller) startCapture() error {
	if c.floor != "" {
		return ErrBusy
	}
	if c.health == nil || !c.health.STTReady {
		return ErrSTTNotReady
	}
	if c.player.Active() {
		return ErrBusy
	}
	if err := c.capture.Begin(c.ctx); err != nil {
		c.fail(StateCapturing.stage(), err)
		return err
	}
	c.publish(events.EventCaptureStarted, events.CaptureData{})
	c.enter(StateCapturing, "primary_control")
	return nil
}

func (c *Controller) finishCapture() {
	artifact, err := c.capture.End()
	if err != nil {
		c.publish(events.EventCaptureFinished, events.CaptureData{})
		c.fail(StateCapturing.stage(), err)
		return
	}
	c.publish(events.EventCaptureFinished, events.CaptureData{Bytes: artifact.Len()})
	c.enter(StateTranscribing, "primary_control")

	gen := c.gen
	go func() {
		ctx, cancel := c.stageContext(StateTranscribing)
		defer cancel()
		text, err := c.backend.Transcribe(ctx, artifact)
		c.deliver(transcribedMsg{gen: gen, audioID: artifact.ID(), text: text, err: err})
	}()
}

// stale reports whether a result belongs to an earlier generation or
// arrives in a state that no longer expects it.
func (c *Controller) stale(gen uint64, want State) bool {
	if gen == c.gen && c.state == want {
		return false
	}
	logger.DebugContext(c.ctx, "Discarding stale pipeline result",
		"expected_state", want.String(), "state", c.state.String(),
		"generation", gen, "current_generation", c.gen)
	return true
}

func (c *Controller) onTranscribed(m transcribedMsg) {
	if c.stale(m.gen, StateTranscribing) {
		return
	}
	if m.err != nil {
		c.fail(StateTranscribing.stage(), m.err)
		return
	}

	history := c.log.Snapshot()
	turn := conversation.NewTurn(conversation.RoleUser, m.text)
	turn.AudioID = m.audioID
	if err := c.appendTurn(turn); err != nil {
		c.fail(StateTranscribing.stage(), err)
		return
	}
	c.enter(StateAwaitingResponse, "transcribed")

	gen := c.gen
	text := m.text
	go func() {
		ctx, cancel := c.stageContext(StateAwaitingResponse)
		defer cancel()
		reply, err := c.backend.Converse(ctx, text, history)
		c.deliver(repliedMsg{gen: gen, reply: reply, err: err})
	}()
}

func (c *Controller) onReplied(m repliedMsg) {
	if c.stale(m.gen, StateAwaitingResponse) {
		return
	}
	if m.err != nil {
		c.fail(StateAwaitingResponse.stage(), m.err)
		return
	}

	if err := c.appendTurn(conversation.NewTurn(conversation.RoleAssistant, m.reply.AssistantText)); err != nil {
		c.fail(StateAwaitingResponse.stage(), err)
		return
	}
	c.enter(StateSynthesizing, "replied")

	gen := c.gen
	text := m.reply.AssistantText
	voice := c.voice
	go func() {
		ctx, cancel := c.stageContext(StateSynthesizing)
		defer cancel()
		artifact, err := c.backend.Synthesize(ctx, text, voice)
		c.deliver(synthesizedMsg{gen: gen, artifact: artifact, err: err})
	}()
}

func (c *Controller) onSynthesized(m synthesizedMsg) {
	if c.stale(m.gen, StateSynthesizing) {
		return
	}
	if m.err != nil {
		c.fail(StateSynthesizing.stage(), m.err)
		return
	}
	if c.capture.Active() {
		c.fail(StatePlaying.stage(), fmt.Errorf("%w: microphone is open", ErrBusy))
		return
	}

	att, err := c.player.Play(m.artifact)
	if err != nil {
		c.fail(StatePlaying.stage(), err)
		return
	}
	c.attempt = att.ID()
	c.publish(events.EventPlaybackStarted, events.PlaybackData{
		AttemptID: att.ID(), Source: "pipeline", Bytes: m.artifact.Len(),
	})
	c.enter(StatePlaying, "synthesized")

	go func() {
		select {
		case ev := <-att.Done():
			c.deliver(playbackDoneMsg{attemptID: att.ID(), event: ev})
		case <-c.quit:
		}
	}()
}

func (c *Controller) onPlaybackDone(m playbackDoneMsg) {
	if c.state != StatePlaying || m.attemptID != c.attempt {
		return
	}
	c.attempt = ""
	if m.event.Outcome == audio.OutcomeFailed {
		err := m.event.Err
		if err == nil {
			err = fmt.Errorf("playback failed: %s", m.event.Reason)
		}
		c.fail(StatePlaying.stage(), err)
		return
	}
	c.enter(StateIdle, "playback_"+string(m.event.Outcome))
}

func (c *Controller) appendTurn(t conversation.Turn) error {
	idx, err := c.log.Append(t)
	if err != nil {
		return err
	}
	ctx := logger.WithTurnID(c.ctx, t.ID)
	logger.DebugContext(ctx, "Turn appended", "role", string(t.Role), "index", idx)
	c.publish(events.EventTurnAppended, events.TurnAppendedData{
		TurnID: t.ID, Role: string(t.Role), Text: t.Text, Index: idx,
	})
	return nil
}

func (c *Controller) stageContext(s State) (context.Context, context.CancelFunc) {
	ctx := logger.WithStage(c.ctx, s.stage())
	if c.stageTimeout > 0 {
		return context.WithTimeout(ctx, c.stageTimeout)
	}
	return context.WithCancel(ctx)
}
