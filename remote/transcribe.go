package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/testing-zone/Valper-AI/audio"
)

// uploadFilename is the name recordings are uploaded under.
const uploadFilename = "audio.wav"

// Transcribe sends a recording to the STT service and returns the text.
// Every failure is a *TranscriptionError wrapping the underlying cause.
func (c *Client) Transcribe(ctx context.Context, a *audio.Artifact) (string, error) {
	start := time.Now()
	text, status, err := c.transcribe(ctx, a)
	c.observe(OpTranscribe, start, status, false, err)
	if err != nil {
		return "", stageError(OpTranscribe, err)
	}
	return text, nil
}

func (c *Client) transcribe(ctx context.Context, a *audio.Artifact) (string, int, error) {
	if a.Len() == 0 {
		return "", 0, ErrEmptyAudio
	}

	body, contentType, err := multipartBody(func(w *multipart.Writer) error {
		return writeAudioPart(w, "audio_file", a)
	})
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("/stt"), body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(ctx, OpTranscribe, req, map[string]any{"audio_bytes": a.Len()})
	if err != nil {
		return "", statusOf(resp), err
	}
	if err := c.schemas.validate(OpTranscribe, transcriptionSchema, resp.body); err != nil {
		return "", resp.status, err
	}

	var result struct {
		Text    string `json:"text"`
		Success *bool  `json:"success"`
	}
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return "", resp.status, &MalformedResponseError{Op: OpTranscribe, Detail: err.Error(), Cause: err}
	}
	if result.Success != nil && !*result.Success {
		return "", resp.status, ErrEmptyTranscript
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", resp.status, ErrEmptyTranscript
	}
	return text, resp.status, nil
}

// multipartBody builds a multipart/form-data body with fill.
func multipartBody(fill func(*multipart.Writer) error) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := fill(w); err != nil {
		return nil, "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeAudioPart(w *multipart.Writer, field string, a *audio.Artifact) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, uploadFilename))
	h.Set("Content-Type", a.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, a.Reader())
	return err
}
