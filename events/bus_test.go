package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForWG(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestEventBusPublishesToSpecificAndGlobalListeners(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []EventType
	var wg sync.WaitGroup
	wg.Add(2)

	bus.Subscribe(EventStateChanged, func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	})
	bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	})

	bus.Publish(New(EventStateChanged, "s", StateChangedData{From: "idle", To: "capturing"}))

	require.True(t, waitForWG(&wg, time.Second), "timed out waiting for listeners")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventStateChanged, EventStateChanged}, received)
}

func TestEventBusPreservesPublishOrder(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	const n = 200
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(n)

	bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		got = append(got, e.Data.(CaptureData).Bytes)
		mu.Unlock()
		wg.Done()
	})

	for i := 0; i < n; i++ {
		bus.Publish(New(EventCaptureChunk, "", CaptureData{Bytes: i}))
	}

	require.True(t, waitForWG(&wg, 2*time.Second))
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestEventBusRecoversFromPanic(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventLogCleared, func(*Event) { panic("listener bug") })
	bus.SubscribeAll(func(*Event) { wg.Done() })

	bus.Publish(New(EventLogCleared, "", LogClearedData{Dropped: 2}))
	assert.True(t, waitForWG(&wg, time.Second))
}

func TestEventBusClosedAndNil(t *testing.T) {
	t.Parallel()

	var nilBus *EventBus
	assert.NotPanics(t, func() { nilBus.Publish(New(EventStateChanged, "", nil)) })

	bus := NewEventBus()
	called := make(chan struct{}, 1)
	bus.SubscribeAll(func(*Event) { called <- struct{}{} })
	bus.Close()
	bus.Close()
	bus.Publish(New(EventStateChanged, "", nil))

	select {
	case <-called:
		t.Fatal("listener invoked after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusClear(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	called := make(chan struct{}, 1)
	bus.SubscribeAll(func(*Event) { called <- struct{}{} })
	bus.Clear()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.SubscribeAll(func(*Event) { wg.Done() })
	bus.Publish(New(EventHealthUpdated, "", HealthData{Status: "healthy"}))

	require.True(t, waitForWG(&wg, time.Second))
	assert.Len(t, called, 0)
}

func TestEventBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	removed := make(chan struct{}, 1)
	unsubscribe := bus.Subscribe(EventTurnAppended, func(*Event) { removed <- struct{}{} })
	unsubscribe()
	unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventTurnAppended, func(*Event) { wg.Done() })
	bus.Publish(New(EventTurnAppended, "", TurnAppendedData{Role: "user", Text: "hi"}))

	require.True(t, waitForWG(&wg, time.Second))
	assert.Len(t, removed, 0)
}
