package controller

import (
	"context"
	"time"

	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
	"github.com/testing-zone/Valper-AI/remote"
)

type healthMsg struct {
	health remote.Health
	seq    uint64
	reply  chan error
}

// RefreshHealth probes the backend and records the result as the
// controller's readiness. A failed probe records the unhealthy fallback and
// returns the error alongside it. A probe that completes after a later one
// has been recorded is returned but does not change readiness.
func (c *Controller) RefreshHealth(ctx context.Context) (remote.Health, error) {
	seq := c.healthSeq.Add(1)
	h, probeErr := c.backend.Health(ctx)
	if probeErr != nil {
		logger.WarnContext(ctx, "Health check failed", "error", probeErr)
		h = remote.UnhealthyFallback()
	}

	reply := make(chan error, 1)
	if err := c.post(ctx, healthMsg{health: h, seq: seq, reply: reply}); err != nil {
		return h, err
	}
	if err := c.await(ctx, reply); err != nil {
		return h, err
	}
	return h, probeErr
}

func (c *Controller) onHealth(m healthMsg) {
	if m.seq < c.healthApplied {
		logger.DebugContext(c.ctx, "Dropping stale health result", "seq", m.seq, "applied", c.healthApplied)
		if m.reply != nil {
			m.reply <- nil
		}
		return
	}
	h := m.health
	c.health = &h
	c.healthApplied = m.seq

	c.mu.Lock()
	c.view.health = &h
	c.mu.Unlock()

	c.publish(events.EventHealthUpdated, events.HealthData{
		Status: h.Status, STTReady: h.STTReady, TTSReady: h.TTSReady,
	})
	if m.reply != nil {
		m.reply <- nil
	}
}

func (c *Controller) pollHealth() {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		if _, err := c.RefreshHealth(c.ctx); err != nil && c.ctx.Err() != nil {
			return
		}
		select {
		case <-c.quit:
			return
		case <-ticker.C:
		}
	}
}
