package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/testing-zone/Valper-AI/logger"
)

type acquireMsg struct {
	reply chan leaseResult
}

type leaseResult struct {
	id  string
	err error
}

type releaseMsg struct {
	id string
}

// Lease holds the floor: while it is held the controller refuses to start
// a recording, so another flow can use the speaker undisturbed.
type Lease struct {
	c    *Controller
	id   string
	once sync.Once
}

// Acquire takes the floor. It fails with ErrBusy unless the controller is
// Idle and nobody else holds the floor.
func (c *Controller) Acquire(ctx context.Context) (*Lease, error) {
	reply := make(chan leaseResult, 1)
	if err := c.post(ctx, acquireMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		return &Lease{c: c, id: r.id}, nil
	case <-c.stopped:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release gives the floor back. Only the first call has an effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.c.deliver(releaseMsg{id: l.id})
	})
}

func (c *Controller) onAcquire() leaseResult {
	if c.state != StateIdle || c.floor != "" {
		return leaseResult{err: ErrBusy}
	}
	c.floor = uuid.NewString()
	logger.DebugContext(c.ctx, "Floor acquired", "lease", c.floor)
	return leaseResult{id: c.floor}
}

func (c *Controller) onRelease(m releaseMsg) {
	if c.floor != m.id {
		return
	}
	logger.DebugContext(c.ctx, "Floor released", "lease", m.id)
	c.floor = ""
}
