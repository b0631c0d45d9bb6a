package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the backend readiness report.
type Health struct {
	Status    string    `json:"status"`
	STTReady  bool      `json:"stt_ready"`
	TTSReady  bool      `json:"tts_ready"`
	LLMReady  bool      `json:"llm_ready,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Healthy reports whether the backend declared itself healthy.
func (h Health) Healthy() bool {
	return h.Status == StatusHealthy
}

// UnhealthyFallback is the report assumed when the probe itself fails.
func UnhealthyFallback() Health {
	return Health{Status: StatusUnhealthy, CheckedAt: time.Now()}
}

type healthPayload struct {
	Status   string `json:"status"`
	STTReady *bool  `json:"stt_ready"`
	TTSReady *bool  `json:"tts_ready"`
	Services *struct {
		STT bool `json:"stt"`
		TTS bool `json:"tts"`
		LLM bool `json:"llm"`
	} `json:"services"`
}

// Health probes the backend. On any failure it returns UnhealthyFallback
// together with the error, so callers can always display the result.
func (c *Client) Health(ctx context.Context) (Health, error) {
	start := time.Now()
	h, status, err := c.health(ctx)
	c.observe(OpHealth, start, status, false, err)
	if err != nil {
		return UnhealthyFallback(), err
	}
	return h, nil
}

func (c *Client) health(ctx context.Context) (Health, int, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, c.apiURL("/health"), nil)
	if err != nil {
		return Health{}, 0, err
	}
	resp, err := c.do(ctx, OpHealth, req, nil)
	if err != nil {
		return Health{}, statusOf(resp), err
	}
	if err := c.schemas.validate(OpHealth, healthSchema, resp.body); err != nil {
		return Health{}, resp.status, err
	}

	var p healthPayload
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return Health{}, resp.status, &MalformedResponseError{Op: OpHealth, Detail: err.Error(), Cause: err}
	}

	h := Health{Status: p.Status, CheckedAt: time.Now()}
	switch {
	case p.STTReady != nil && p.TTSReady != nil:
		h.STTReady, h.TTSReady = *p.STTReady, *p.TTSReady
		if p.Services != nil {
			h.LLMReady = p.Services.LLM
		}
	case p.Services != nil:
		h.STTReady, h.TTSReady, h.LLMReady = p.Services.STT, p.Services.TTS, p.Services.LLM
	}
	return h, resp.status, nil
}

// ServicesStatus returns the backend's per-service diagnostic info.
func (c *Client) ServicesStatus(ctx context.Context) (map[string]map[string]any, error) {
	start := time.Now()
	req, err := c.newJSONRequest(ctx, http.MethodGet, c.apiURL("/services/status"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, OpServicesStatus, req, nil)
	var out map[string]map[string]any
	if err == nil {
		if jerr := json.Unmarshal(resp.body, &out); jerr != nil {
			err = &MalformedResponseError{Op: OpServicesStatus, Detail: jerr.Error(), Cause: jerr}
		}
	}
	c.observe(OpServicesStatus, start, statusOf(resp), false, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}
