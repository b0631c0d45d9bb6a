package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/conversation"
)

// Reply is the conversation service's answer to one user message.
type Reply struct {
	// UserText is the message as the backend understood it. For audio
	// requests it is the backend's own transcription.
	UserText      string
	AssistantText string
	// AudioURL points at backend-side synthesized audio, when provided.
	AudioURL string
}

// HistoryEntry is the wire form of a turn.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryFromTurns converts turns to the wire form, oldest first.
func HistoryFromTurns(turns []conversation.Turn) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		out = append(out, HistoryEntry{Role: string(t.Role), Content: t.Text})
	}
	return out
}

type conversationRequest struct {
	Message string         `json:"message"`
	History []HistoryEntry `json:"history"`
}

type conversationPayload struct {
	UserText  string  `json:"user_text"`
	AudioURL  *string `json:"audio_url"`
	AudioPath *string `json:"audio_path"`
}

// Converse sends text with the prior history and returns the assistant's
// reply. history is the log as it was before this message.
func (c *Client) Converse(ctx context.Context, text string, history []conversation.Turn) (Reply, error) {
	start := time.Now()
	reply, status, err := c.converse(ctx, text, history)
	c.observe(OpConverse, start, status, false, err)
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (c *Client) converse(ctx context.Context, text string, history []conversation.Turn) (Reply, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, 0, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return Reply{}, 0, fmt.Errorf("%w: %d characters, limit %d",
			ErrTextTooLong, utf8.RuneCountInString(text), MaxMessageLength)
	}

	body := conversationRequest{Message: text, History: HistoryFromTurns(history)}
	req, err := c.newJSONRequest(ctx, http.MethodPost, c.apiURL("/conversation"), body)
	if err != nil {
		return Reply{}, 0, err
	}
	resp, err := c.do(ctx, OpConverse, req, map[string]any{"message": text, "history_len": len(history)})
	if err != nil {
		return Reply{}, statusOf(resp), err
	}
	reply, err := c.parseReply(resp.body)
	if err != nil {
		return Reply{}, resp.status, err
	}
	if reply.UserText == "" {
		reply.UserText = text
	}
	return reply, resp.status, nil
}

// ConverseAudio sends a recording to the combined conversation endpoint,
// which transcribes, answers and synthesizes in one call.
func (c *Client) ConverseAudio(ctx context.Context, a *audio.Artifact, history []conversation.Turn) (Reply, error) {
	start := time.Now()
	reply, status, err := c.converseAudio(ctx, a, history)
	c.observe(OpConverse, start, status, false, err)
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (c *Client) converseAudio(ctx context.Context, a *audio.Artifact, history []conversation.Turn) (Reply, int, error) {
	if a.Len() == 0 {
		return Reply{}, 0, ErrEmptyAudio
	}
	hist, err := json.Marshal(HistoryFromTurns(history))
	if err != nil {
		return Reply{}, 0, fmt.Errorf("failed to marshal history: %w", err)
	}

	body, contentType, err := multipartBody(func(w *multipart.Writer) error {
		if err := writeAudioPart(w, "audio_file", a); err != nil {
			return err
		}
		return w.WriteField("conversation_history", string(hist))
	})
	if err != nil {
		return Reply{}, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("/conversation"), body)
	if err != nil {
		return Reply{}, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(ctx, OpConverse, req, map[string]any{"audio_bytes": a.Len(), "history_len": len(history)})
	if err != nil {
		return Reply{}, statusOf(resp), err
	}
	reply, err := c.parseReply(resp.body)
	if err != nil {
		return Reply{}, resp.status, err
	}
	return reply, resp.status, nil
}

func (c *Client) parseReply(body []byte) (Reply, error) {
	if err := c.schemas.validate(OpConverse, conversationSchema, body); err != nil {
		return Reply{}, err
	}
	assistant, err := c.extractor.extract(OpConverse, body)
	if err != nil {
		return Reply{}, err
	}

	var p conversationPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Reply{}, &MalformedResponseError{Op: OpConverse, Detail: err.Error(), Cause: err}
	}
	reply := Reply{UserText: strings.TrimSpace(p.UserText), AssistantText: assistant}
	switch {
	case p.AudioURL != nil:
		reply.AudioURL = *p.AudioURL
	case p.AudioPath != nil:
		reply.AudioURL = *p.AudioPath
	}
	return reply, nil
}
