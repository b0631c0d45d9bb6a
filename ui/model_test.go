package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/controller"
	"github.com/testing-zone/Valper-AI/conversation"
	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/manual"
	"github.com/testing-zone/Valper-AI/remote"
)

type fakeController struct {
	mu        sync.Mutex
	state     controller.State
	status    string
	health    *remote.Health
	log       *conversation.Log
	primary   int
	clears    int
	refreshes int
	err       error
}

func newFakeController() *fakeController {
	return &fakeController{status: "Ready", log: conversation.NewLog()}
}

func (f *fakeController) PrimaryControl(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primary++
	return f.err
}

func (f *fakeController) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.log.Clear()
	return nil
}

func (f *fakeController) RefreshHealth(context.Context) (remote.Health, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	h := remote.Health{Status: remote.StatusHealthy, STTReady: true, TTSReady: true, LLMReady: true}
	f.health = &h
	return h, nil
}

func (f *fakeController) State() controller.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Status() string { return f.status }

func (f *fakeController) Readiness() (remote.Health, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.health == nil {
		return remote.Health{}, false
	}
	return *f.health, true
}

func (f *fakeController) Log() *conversation.Log { return f.log }

type fakeRunner struct {
	mu   sync.Mutex
	reqs []manual.Request
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req manual.Request) (*manual.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &manual.Result{Text: req.Text, Voice: req.Voice, Outcome: audio.OutcomeCompleted}, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModel_PrimaryKey(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, nil, "af_heart")

	m, cmd := update(t, m, key(" "))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, actionMsg{action: "primary"}, msg)
	assert.Equal(t, 1, ctrl.primary)
}

func TestModel_ActionErrorShowsStatus(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = controller.ErrSTTNotReady
	m := NewModel(ctrl, nil, "af_heart")

	m, cmd := update(t, m, key(" "))
	m, _ = update(t, m, cmd())

	assert.True(t, m.statusErr)
	assert.Contains(t, m.View(), "speech recognition service is not ready")
}

func TestModel_StatusAndState(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, nil, "af_heart")

	ctrl.state = controller.StateCapturing
	m, _ = update(t, m, StateMsg{From: "idle", To: "capturing"})
	m, _ = update(t, m, StatusMsg{Status: "Recording..."})
	m, _ = update(t, m, LevelMsg{Level: 0.5})

	assert.Equal(t, controller.StateCapturing, m.state)
	assert.InDelta(t, 0.5, m.level, 1e-9)
	view := m.View()
	assert.Contains(t, view, "Recording...")
	assert.Contains(t, view, "stop recording")

	ctrl.state = controller.StateTranscribing
	m, _ = update(t, m, StateMsg{From: "capturing", To: "transcribing"})
	assert.Zero(t, m.level)
}

func TestModel_TurnsRendered(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, nil, "af_heart")
	assert.Contains(t, m.View(), emptyLogNotice)

	_, err := ctrl.log.Append(conversation.NewTurn(conversation.RoleUser, "what time is it"))
	require.NoError(t, err)
	_, err = ctrl.log.Append(conversation.NewTurn(conversation.RoleAssistant, "It is noon"))
	require.NoError(t, err)

	m, _ = update(t, m, TurnMsg{Role: "assistant", Text: "It is noon", Index: 1})
	view := m.View()
	assert.Contains(t, view, "what time is it")
	assert.Contains(t, view, "noon")

	ctrl.log.Clear()
	m, _ = update(t, m, ClearedMsg{Dropped: 2})
	assert.Contains(t, m.View(), emptyLogNotice)
}

func TestModel_Health(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, nil, "af_heart")
	assert.Contains(t, m.View(), "checking")

	m, cmd := update(t, m, key("r"))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, HealthMsg{}, msg)
	m, _ = update(t, m, msg)

	require.NotNil(t, m.health)
	assert.True(t, m.health.STTReady)
	assert.Contains(t, m.View(), "STT ✓")
	assert.Equal(t, 1, ctrl.refreshes)
}

func TestModel_ManualSynthesis(t *testing.T) {
	ctrl := newFakeController()
	runner := &fakeRunner{}
	m := NewModel(ctrl, runner, "am_adam")

	m, _ = update(t, m, key("v"))
	assert.True(t, m.verify)

	m, _ = update(t, m, key("t"))
	require.True(t, m.input.Focused())

	// Keys go to the input while it is focused.
	m, _ = update(t, m, key("hi there"))
	assert.Equal(t, "hi there", m.input.Value())
	m, _ = update(t, m, key(" "))
	assert.Equal(t, 0, ctrl.primary)

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.True(t, m.manualRunning)
	assert.False(t, m.input.Focused())

	m, _ = update(t, m, cmd())
	assert.False(t, m.manualRunning)
	require.Len(t, runner.reqs, 1)
	assert.Equal(t, manual.Request{Text: "hi there ", Voice: "am_adam", Verify: true}, runner.reqs[0])
	assert.Contains(t, m.View(), "Manual synthesis completed")
}

func TestModel_ManualCancel(t *testing.T) {
	runner := &fakeRunner{}
	m := NewModel(newFakeController(), runner, "af_heart")

	m, _ = update(t, m, key("t"))
	m, _ = update(t, m, key("abc"))
	m, _ = update(t, m, key("esc"))

	assert.False(t, m.input.Focused())
	assert.Empty(t, m.input.Value())
	assert.Empty(t, runner.reqs)
}

func TestModel_ManualError(t *testing.T) {
	runner := &fakeRunner{err: manual.ErrTTSNotReady}
	m := NewModel(newFakeController(), runner, "af_heart")

	m, _ = update(t, m, key("t"))
	m, cmd := update(t, m, key("enter"))
	m, _ = update(t, m, cmd())

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "speech synthesis service is not ready")
}

func TestModel_ManualDisabled(t *testing.T) {
	m := NewModel(newFakeController(), nil, "af_heart")
	m, cmd := update(t, m, key("t"))
	assert.Nil(t, cmd)
	assert.False(t, m.input.Focused())
	assert.NotContains(t, m.View(), "speak text")
}

func TestModel_Clear(t *testing.T) {
	ctrl := newFakeController()
	m := NewModel(ctrl, nil, "af_heart")
	m.manualResult = "old"

	m, cmd := update(t, m, key("c"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, ctrl.clears)
	assert.Empty(t, m.manualResult)
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(newFakeController(), nil, "af_heart")
	m, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel(newFakeController(), nil, "af_heart")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, m.viewport.Width)
	assert.Equal(t, 40-chromeHeight, m.viewport.Height)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 5})
	assert.Equal(t, minViewport, m.viewport.Height)
}

func TestRenderLevel(t *testing.T) {
	assert.Equal(t, levelBarWidth, strings.Count(renderLevel(0), "░"))
	assert.Equal(t, levelBarWidth, strings.Count(renderLevel(1.5), "█"))
	assert.Equal(t, levelBarWidth/2, strings.Count(renderLevel(0.5), "█"))
}

func TestMapEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *events.Event
		want  tea.Msg
	}{
		{"state", events.New(events.EventStateChanged, "s", events.StateChangedData{From: "idle", To: "capturing", Cause: "primary_control"}),
			StateMsg{From: "idle", To: "capturing", Cause: "primary_control"}},
		{"status", events.New(events.EventStatusChanged, "s", events.StatusChangedData{Status: "Error: x", Error: true}),
			StatusMsg{Status: "Error: x", Error: true}},
		{"turn", events.New(events.EventTurnAppended, "s", events.TurnAppendedData{Role: "user", Text: "hi", Index: 0}),
			TurnMsg{Role: "user", Text: "hi"}},
		{"cleared", events.New(events.EventLogCleared, "s", events.LogClearedData{Dropped: 3}), ClearedMsg{Dropped: 3}},
		{"health", events.New(events.EventHealthUpdated, "s", events.HealthData{Status: "healthy", STTReady: true}),
			HealthMsg{Status: "healthy", STTReady: true}},
		{"chunk", events.New(events.EventCaptureChunk, "s", events.CaptureData{Level: 0.25}), LevelMsg{Level: 0.25}},
		{"capture finished", events.New(events.EventCaptureFinished, "s", events.CaptureData{Bytes: 10}), LevelMsg{}},
		{"capture started", events.New(events.EventCaptureStarted, "s", events.CaptureData{}), nil},
		{"manual", events.New(events.EventManualCompleted, "s", events.ManualCompletedData{Text: "a", Outcome: "completed"}),
			ManualDoneMsg{Text: "a", Outcome: "completed"}},
		{"remote call", events.New(events.EventRemoteCallCompleted, "s", events.RemoteCallData{Operation: "health"}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapEvent(tt.event))
		})
	}
}

func TestEventAdapter_Forwards(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	got := make(chan tea.Msg, 4)
	NewEventAdapterFunc(func(m tea.Msg) { got <- m }).Subscribe(bus)

	bus.Publish(events.New(events.EventPlaybackStarted, "s", events.PlaybackData{AttemptID: "a"}))
	bus.Publish(events.New(events.EventStatusChanged, "s", events.StatusChangedData{Status: "Ready"}))

	assert.Equal(t, StatusMsg{Status: "Ready"}, <-got)
}

func TestPlain_Commands(t *testing.T) {
	ctrl := newFakeController()
	runner := &fakeRunner{err: errors.New("speaker unplugged")}
	var out bytes.Buffer
	p := NewPlain(ctrl, runner, "af_heart", &out)

	in := strings.NewReader("\nt hello world\nc\nr\nbogus\nq\n\n")
	require.NoError(t, p.Run(context.Background(), in))

	assert.Equal(t, 1, ctrl.primary, "input after q is not read")
	assert.Equal(t, 1, ctrl.clears)
	assert.Equal(t, 1, ctrl.refreshes)
	require.Len(t, runner.reqs, 1)
	assert.Equal(t, manual.Request{Text: "hello world", Voice: "af_heart"}, runner.reqs[0])

	text := out.String()
	assert.Contains(t, text, "error: speaker unplugged")
	assert.Contains(t, text, "backend healthy (stt=true llm=true tts=true)")
	assert.Contains(t, text, `unknown command "bogus"`)
}

func TestPlain_PrintsEvents(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(newFakeController(), nil, "af_heart", &out)

	p.HandleEvent(events.New(events.EventStatusChanged, "s", events.StatusChangedData{Status: "Recording..."}))
	p.HandleEvent(events.New(events.EventTurnAppended, "s", events.TurnAppendedData{Role: "user", Text: "hello"}))
	p.HandleEvent(events.New(events.EventTurnAppended, "s", events.TurnAppendedData{Role: "assistant", Text: "hi"}))
	p.HandleEvent(events.New(events.EventLogCleared, "s", events.LogClearedData{Dropped: 2}))

	assert.Equal(t, "[Recording...]\nYou: hello\nValper: hi\n(conversation cleared, 2 turns dropped)\n", out.String())
}

func TestPlain_ManualDisabled(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(newFakeController(), nil, "af_heart", &out)
	require.NoError(t, p.Run(context.Background(), strings.NewReader("v check\n")))
	assert.Contains(t, out.String(), "manual synthesis is disabled")
}
