// Package conversation holds the in-session history of turns exchanged
// between the operator and the assistant.
package conversation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

var (
	// ErrInvalidRole is returned when appending a turn with an unknown role.
	ErrInvalidRole = errors.New("invalid turn role")

	// ErrEmptyTurn is returned when appending a turn without text.
	ErrEmptyTurn = errors.New("turn text is empty")
)

// Turn is one utterance in the conversation. Turns are values and are
// never modified after being appended.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	// AudioID is the artifact the turn was transcribed from, if any.
	AudioID string `json:"audio_id,omitempty"`
}

// NewTurn creates a turn with a fresh ID and the current time.
func NewTurn(role Role, text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Log is the ordered, append-only history of a session. It is safe for
// concurrent use.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds t to the end of the log and returns its index. Missing ID
// and CreatedAt are filled in.
func (l *Log) Append(t Turn) (int, error) {
	if !t.Role.Valid() {
		return -1, ErrInvalidRole
	}
	if strings.TrimSpace(t.Text) == "" {
		return -1, ErrEmptyTurn
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
	return len(l.turns) - 1, nil
}

// Snapshot returns a copy of the turns in order. Later appends or clears do
// not affect the returned slice.
func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Last returns the most recent turn.
func (l *Log) Last() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// Clear empties the log and returns how many turns were dropped.
func (l *Log) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.turns)
	l.turns = nil
	return n
}

// Len returns the number of turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}
