// Package ui provides the terminal user interface of the voice client.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/testing-zone/Valper-AI/controller"
	"github.com/testing-zone/Valper-AI/conversation"
	"github.com/testing-zone/Valper-AI/manual"
	"github.com/testing-zone/Valper-AI/remote"
)

const (
	defaultWidth     = 80
	defaultHeight    = 24
	chromeHeight     = 9
	minViewport      = 3
	levelBarWidth    = 30
	manualCharLimit  = 1000
	actionTimeout    = 10 * time.Second
	headerTitle      = "Valper AI"
	emptyLogNotice   = "No conversation yet. Press space to talk."
	manualPromptText = "Text to speak (enter to play, esc to cancel)"
)

// Controller is the part of the interaction controller the UI drives.
type Controller interface {
	PrimaryControl(ctx context.Context) error
	Clear(ctx context.Context) error
	RefreshHealth(ctx context.Context) (remote.Health, error)
	State() controller.State
	Status() string
	Readiness() (remote.Health, bool)
	Log() *conversation.Log
}

// ManualRunner runs manual synthesis requests.
type ManualRunner interface {
	Run(ctx context.Context, req manual.Request) (*manual.Result, error)
}

// Model is the bubbletea model of the voice client.
type Model struct {
	ctrl   Controller
	manual ManualRunner
	voice  string

	spinner  spinner.Model
	viewport viewport.Model
	input    textinput.Model
	renderer *glamour.TermRenderer

	width  int
	height int

	state     controller.State
	status    string
	statusErr bool
	health    *remote.Health
	level     float64

	verify        bool
	manualRunning bool
	manualResult  string

	quitting bool
}

// NewModel creates the UI model. runner may be nil to disable manual TTS.
func NewModel(ctrl Controller, runner ManualRunner, voice string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	in := textinput.New()
	in.Placeholder = manual.DefaultTestPhrase
	in.CharLimit = manualCharLimit
	in.Prompt = "> "

	m := Model{
		ctrl:     ctrl,
		manual:   runner,
		voice:    voice,
		spinner:  s,
		input:    in,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		width:    defaultWidth,
		height:   defaultHeight,
		state:    ctrl.State(),
		status:   ctrl.Status(),
	}
	if h, ok := ctrl.Readiness(); ok {
		m.health = &h
	}
	m.renderer = newRenderer(defaultWidth)
	m.refreshConversation()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refreshHealth())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, minViewport)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(msg.Width)
		m.refreshConversation()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case StateMsg:
		m.state = m.ctrl.State()
		if msg.To != controller.StateCapturing.String() {
			m.level = 0
		}

	case StatusMsg:
		m.status = msg.Status
		m.statusErr = msg.Error

	case TurnMsg, ClearedMsg:
		m.refreshConversation()

	case HealthMsg:
		if h, ok := m.ctrl.Readiness(); ok {
			m.health = &h
		}

	case LevelMsg:
		m.level = msg.Level

	case ManualDoneMsg:
		m.manualResult = formatManual(msg.Outcome, msg.Transcript, msg.Accuracy)

	case manualMsg:
		m.manualRunning = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.statusErr = true
		}
		if msg.result != nil {
			m.manualResult = formatManual(string(msg.result.Outcome), msg.result.Transcript, msg.result.Accuracy)
		}

	case actionMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.statusErr = true
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.input.Focused() {
		switch msg.Type {
		case tea.KeyEsc:
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.Blur()
			m.input.Reset()
			return m.startManual(text)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case " ", "space":
		return m, m.action("primary", m.ctrl.PrimaryControl)
	case "t":
		if m.manual == nil {
			return m, nil
		}
		m.input.Focus()
		return m, textinput.Blink
	case "v":
		m.verify = !m.verify
	case "c":
		m.manualResult = ""
		return m, m.action("clear", m.ctrl.Clear)
	case "r":
		return m, m.refreshHealth()
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) startManual(text string) (tea.Model, tea.Cmd) {
	if m.manual == nil || m.manualRunning {
		return m, nil
	}
	m.manualRunning = true
	m.manualResult = ""
	runner := m.manual
	req := manual.Request{Text: text, Voice: m.voice, Verify: m.verify}
	return m, func() tea.Msg {
		res, err := runner.Run(context.Background(), req)
		return manualMsg{result: res, err: err}
	}
}

func (m Model) action(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{action: name, err: fn(ctx)}
	}
}

func (m Model) refreshHealth() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		h, err := ctrl.RefreshHealth(ctx)
		if err != nil {
			return actionMsg{action: "health", err: fmt.Errorf("health check failed: %w", err)}
		}
		return HealthMsg{Status: h.Status, STTReady: h.STTReady, TTSReady: h.TTSReady}
	}
}

func (m *Model) refreshConversation() {
	m.viewport.SetContent(m.renderConversation(m.ctrl.Log().Snapshot()))
	m.viewport.GotoBottom()
}

func (m Model) renderConversation(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return statusStyle.Render(emptyLogNotice)
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		switch t.Role {
		case conversation.RoleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(t.Text)
			b.WriteString("\n")
		default:
			b.WriteString(assistantStyle.Render("Valper:"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(t.Text))
		}
	}
	return b.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return strings.Trim(out, "\n") + "\n"
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render(headerTitle))
	b.WriteString("  ")
	b.WriteString(m.renderHealth())
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	if m.state == controller.StateCapturing {
		b.WriteString(renderLevel(m.level))
	}
	b.WriteString("\n")

	b.WriteString(boxStyle.Width(max(m.width-2, 20)).Render(m.viewport.View()))
	b.WriteString("\n")

	if m.input.Focused() {
		b.WriteString(statusStyle.Render(manualPromptText))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	} else if m.manualRunning {
		b.WriteString(m.spinner.View() + " Manual synthesis...\n")
	} else if m.manualResult != "" {
		b.WriteString(statusStyle.Render(m.manualResult))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(m.helpLine()))
	return b.String()
}

func (m Model) renderStatus() string {
	switch {
	case m.statusErr:
		return errorStyle.Render("⚠ " + m.status)
	case m.state == controller.StateCapturing:
		return activeStyle.Render("● " + m.status)
	case m.state.Busy():
		return m.spinner.View() + " " + statusStyle.Render(m.status)
	case m.state == controller.StatePlaying:
		return activeStyle.Render("♪ " + m.status)
	default:
		return statusStyle.Render(m.status)
	}
}

func (m Model) renderHealth() string {
	if m.health == nil {
		return warningStyle.Render("backend: checking...")
	}
	badge := func(name string, ready bool) string {
		if ready {
			return activeStyle.Render(name + " ✓")
		}
		return errorStyle.Render(name + " ✗")
	}
	return strings.Join([]string{
		badge("STT", m.health.STTReady),
		badge("LLM", m.health.LLMReady),
		badge("TTS", m.health.TTSReady),
	}, " ")
}

func renderLevel(level float64) string {
	filled := int(level * levelBarWidth)
	filled = min(max(filled, 0), levelBarWidth)
	return activeStyle.Render(strings.Repeat("█", filled)) +
		statusStyle.Render(strings.Repeat("░", levelBarWidth-filled))
}

func (m Model) helpLine() string {
	parts := []string{"space: " + m.primaryHint()}
	if m.manual != nil {
		verify := "off"
		if m.verify {
			verify = "on"
		}
		parts = append(parts, "t: speak text", "v: verify "+verify)
	}
	parts = append(parts, "c: clear", "r: health", "q: quit")
	return strings.Join(parts, " • ")
}

func (m Model) primaryHint() string {
	switch m.state {
	case controller.StateCapturing:
		return "stop recording"
	case controller.StatePlaying:
		return "interrupt"
	default:
		return "talk"
	}
}

func formatManual(outcome, transcript string, accuracy float64) string {
	if transcript == "" {
		return "Manual synthesis " + outcome
	}
	return fmt.Sprintf("Manual synthesis %s, heard %q (accuracy %.0f%%)", outcome, transcript, accuracy*100)
}
