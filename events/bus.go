// Package events provides a lightweight pub/sub event bus used to observe the
// voice client: state changes, turns, remote calls and audio activity.
package events

import (
	"sync"

	"github.com/testing-zone/Valper-AI/logger"
)

// Listener is a function that handles events.
type Listener func(*Event)

type subscriber struct {
	id       uint64
	all      bool
	typ      EventType
	listener Listener
}

func (s subscriber) wants(t EventType) bool {
	return s.all || s.typ == t
}

// EventBus fans events out to listeners.
//
// Events are delivered on a single dispatch goroutine in the order they were
// published, so observers such as the terminal UI never see a state change
// before the one that preceded it. Listeners must not block for long.
type EventBus struct {
	mu     sync.Mutex
	subs   []subscriber // replaced, never modified in place
	nextID uint64

	qmu     sync.Mutex
	queue   []*Event
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	started sync.Once
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Subscribe registers listener for events of type t. The returned function
// removes it.
func (eb *EventBus) Subscribe(t EventType, listener Listener) (unsubscribe func()) {
	return eb.add(subscriber{typ: t, listener: listener})
}

// SubscribeAll registers listener for every event. The returned function
// removes it.
func (eb *EventBus) SubscribeAll(listener Listener) (unsubscribe func()) {
	return eb.add(subscriber{all: true, listener: listener})
}

func (eb *EventBus) add(s subscriber) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	s.id = eb.nextID
	subs := make([]subscriber, len(eb.subs), len(eb.subs)+1)
	copy(subs, eb.subs)
	eb.subs = append(subs, s)

	var once sync.Once
	return func() { once.Do(func() { eb.remove(s.id) }) }
}

func (eb *EventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subs := make([]subscriber, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	eb.subs = subs
}

func (eb *EventBus) snapshot() []subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.subs
}

// Publish queues an event for asynchronous delivery. Publishing on a nil or
// closed bus is a no-op.
func (eb *EventBus) Publish(event *Event) {
	if eb == nil || event == nil {
		return
	}
	eb.started.Do(func() { go eb.dispatch() })

	eb.qmu.Lock()
	if eb.closed {
		eb.qmu.Unlock()
		return
	}
	eb.queue = append(eb.queue, event)
	eb.qmu.Unlock()

	select {
	case eb.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery. Events still queued are dropped.
func (eb *EventBus) Close() {
	eb.qmu.Lock()
	defer eb.qmu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	eb.queue = nil
	close(eb.done)
}

// Clear removes every listener.
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subs = nil
}

func (eb *EventBus) dispatch() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.wake:
		}
		for {
			event, ok := eb.next()
			if !ok {
				break
			}
			for _, s := range eb.snapshot() {
				if s.wants(event.Type) {
					invoke(s.listener, event)
				}
			}
		}
	}
}

func (eb *EventBus) next() (*Event, bool) {
	eb.qmu.Lock()
	defer eb.qmu.Unlock()
	if eb.closed || len(eb.queue) == 0 {
		return nil, false
	}
	event := eb.queue[0]
	eb.queue[0] = nil
	eb.queue = eb.queue[1:]
	return event, true
}

// invoke isolates the bus from a panicking listener.
func invoke(listener Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event listener panicked", "event", string(event.Type), "panic", r)
		}
	}()
	listener(event)
}
