package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/manual"
)

// Plain is a line-oriented front end for terminals without TTY support.
// An empty line is the primary control; other commands are single words.
type Plain struct {
	ctrl   Controller
	manual ManualRunner
	voice  string

	mu  sync.Mutex
	out io.Writer
}

// NewPlain creates a line-mode front end writing to out.
func NewPlain(ctrl Controller, runner ManualRunner, voice string, out io.Writer) *Plain {
	return &Plain{ctrl: ctrl, manual: runner, voice: voice, out: out}
}

// Subscribe prints status lines and turns from bus.
func (p *Plain) Subscribe(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.SubscribeAll(p.HandleEvent)
}

// HandleEvent prints the events an operator needs to follow the session.
func (p *Plain) HandleEvent(e *events.Event) {
	switch msg := MapEvent(e).(type) {
	case StatusMsg:
		p.printf("[%s]\n", msg.Status)
	case TurnMsg:
		p.printf("%s: %s\n", roleLabel(msg.Role), msg.Text)
	case ClearedMsg:
		p.printf("(conversation cleared, %d turns dropped)\n", msg.Dropped)
	}
}

// Run reads commands from in until EOF, "q" or ctx ends.
func (p *Plain) Run(ctx context.Context, in io.Reader) error {
	p.printf("Enter: talk/stop/interrupt • t <text>: speak • v <text>: speak and verify • c: clear • r: health • q: quit\n")

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if quit := p.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

func (p *Plain) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	var err error
	switch cmd {
	case "":
		err = p.ctrl.PrimaryControl(ctx)
	case "t", "v":
		if p.manual == nil {
			p.printf("manual synthesis is disabled\n")
			return false
		}
		var res *manual.Result
		res, err = p.manual.Run(ctx, manual.Request{Text: arg, Voice: p.voice, Verify: cmd == "v"})
		if res != nil {
			p.printf("%s\n", formatManual(string(res.Outcome), res.Transcript, res.Accuracy))
		}
	case "c":
		err = p.ctrl.Clear(ctx)
	case "r":
		h, herr := p.ctrl.RefreshHealth(ctx)
		err = herr
		p.printf("backend %s (stt=%t llm=%t tts=%t)\n", h.Status, h.STTReady, h.LLMReady, h.TTSReady)
	case "q", "quit", "exit":
		return true
	default:
		p.printf("unknown command %q\n", cmd)
	}
	if err != nil {
		p.printf("error: %v\n", err)
	}
	return false
}

func (p *Plain) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func roleLabel(role string) string {
	if role == "user" {
		return "You"
	}
	return "Valper"
}
