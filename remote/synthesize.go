package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/cache"
	"github.com/testing-zone/Valper-AI/logger"
)

type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize converts text to speech with voice (DefaultVoice when empty).
// Every failure is a *SynthesisError wrapping the underlying cause.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*audio.Artifact, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	start := time.Now()
	if a := c.cached(ctx, voice, text); a != nil {
		c.observe(OpSynthesize, start, 0, true, nil)
		return a, nil
	}

	a, status, err := c.synthesize(ctx, text, voice)
	c.observe(OpSynthesize, start, status, false, err)
	if err != nil {
		return nil, stageError(OpSynthesize, err)
	}
	c.store(ctx, voice, text, a)
	return a, nil
}

func (c *Client) synthesize(ctx context.Context, text, voice string) (*audio.Artifact, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, ErrEmptyText
	}
	if n := utf8.RuneCountInString(text); n > MaxSynthesisLength {
		return nil, 0, fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, n, MaxSynthesisLength)
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, c.apiURL("/tts"), synthesisRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.do(ctx, OpSynthesize, req, map[string]any{"voice": voice, "text_len": len(text)})
	if err != nil {
		return nil, statusOf(resp), err
	}

	contentType, ok := audioContentType(resp.contentType)
	if !ok {
		return nil, resp.status, &MalformedResponseError{
			Op:     OpSynthesize,
			Detail: fmt.Sprintf("unexpected content type %q", resp.contentType),
		}
	}
	if len(resp.body) == 0 {
		return nil, resp.status, &MalformedResponseError{Op: OpSynthesize, Detail: "empty audio payload"}
	}
	return audio.NewArtifact(resp.body, contentType), resp.status, nil
}

// audioContentType accepts audio/* and application/octet-stream, and an
// absent header.
func audioContentType(header string) (string, bool) {
	if header == "" {
		return audio.ContentTypeOctetStream, true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	if strings.HasPrefix(mediaType, "audio/") || mediaType == audio.ContentTypeOctetStream {
		return mediaType, true
	}
	return "", false
}

func (c *Client) cached(ctx context.Context, voice, text string) *audio.Artifact {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Get(ctx, cache.SynthesisKey(voice, text))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.WarnContext(ctx, "Synthesis cache lookup failed", "error", err)
		}
		return nil
	}
	logger.DebugContext(ctx, "Synthesis cache hit", "voice", voice, "bytes", len(entry.Data))
	return audio.NewArtifact(entry.Data, entry.ContentType)
}

func (c *Client) store(ctx context.Context, voice, text string, a *audio.Artifact) {
	if c.cache == nil {
		return
	}
	entry := &cache.Entry{Data: a.Bytes(), ContentType: a.ContentType()}
	if err := c.cache.Set(ctx, cache.SynthesisKey(voice, text), entry); err != nil {
		logger.WarnContext(ctx, "Synthesis cache store failed", "error", err)
	}
}
