// Package remote is the HTTP client for the Valper backend: health, speech
// recognition, conversation and speech synthesis. Each call is a single
// round trip; nothing is retried here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/testing-zone/Valper-AI/cache"
	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
)

const (
	requestIDHeader = "X-Request-ID"

	// DefaultBaseURL is where the backend listens by default.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultAPIPrefix is the router prefix of the backend API.
	DefaultAPIPrefix = "/api/v1"
	// DefaultVoice is the backend's default synthesis voice.
	DefaultVoice = "af_heart"

	// MaxMessageLength is the backend limit for a conversation message.
	MaxMessageLength = 500
	// MaxSynthesisLength is the backend limit for text to synthesize.
	MaxSynthesisLength = 1000

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 32 << 20
	maxErrorDetail  = 200
)

// Operation names used in errors, logs and events.
const (
	OpHealth         = "health"
	OpTranscribe     = "transcribe"
	OpConverse       = "converse"
	OpSynthesize     = "synthesize"
	OpServicesStatus = "services_status"
	OpVersion        = "version"
)

// Client talks to the Valper backend.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	limiter    *rate.Limiter
	bus        *events.EventBus
	sessionID  string
	cache      cache.Store
	extractor  *textExtractor
	schemas    *schemaValidator
	tracer     trace.TracerProvider
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithAPIPrefix overrides the API router prefix.
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = "/" + strings.Trim(prefix, "/")
		if c.prefix == "/" {
			c.prefix = ""
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// Requests wait for a token; they are never dropped or retried.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithEventBus publishes a remote.call event for every round trip.
func WithEventBus(bus *events.EventBus, sessionID string) Option {
	return func(c *Client) {
		c.bus = bus
		c.sessionID = sessionID
	}
}

// WithSynthesisCache serves repeated synthesis requests from store.
func WithSynthesisCache(store cache.Store) Option {
	return func(c *Client) {
		c.cache = store
	}
}

// WithAssistantTextExpression sets the JMESPath expression used to read the
// assistant reply from a conversation response.
func WithAssistantTextExpression(expr string) Option {
	return func(c *Client) {
		if expr != "" {
			c.extractor = newTextExtractor(expr)
		}
	}
}

// WithTracerProvider instruments requests with OpenTelemetry client spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp
	}
}

// NewClient creates a backend client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     DefaultAPIPrefix,
		httpClient: &http.Client{Timeout: defaultTimeout},
		extractor:  newTextExtractor(DefaultAssistantTextExpression),
		schemas:    newSchemaValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer != nil {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		instrumented := *c.httpClient
		instrumented.Transport = otelhttp.NewTransport(base, otelhttp.WithTracerProvider(c.tracer))
		c.httpClient = &instrumented
	}
	return c
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) apiURL(path string) string {
	return c.baseURL + c.prefix + path
}

// response is a fully read HTTP response.
type response struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// do performs one round trip. Transport failures become TransportError and
// non-2xx responses become ServiceError.
func (c *Client) do(ctx context.Context, op string, req *http.Request, logBody any) (*response, error) {
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	ctx = logger.WithRequestID(ctx, requestID)
	logger.APIRequest(ctx, op, req.Method, req.URL.String(), logBody)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, URL: req.URL.String(), Err: err}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: fmt.Errorf("read response: %w", err)}
	}

	r := &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return r, &ServiceError{Op: op, Status: resp.StatusCode, Message: errorDetail(resp.StatusCode, body)}
	}
	if strings.HasPrefix(r.contentType, "application/json") {
		logger.APIResponse(ctx, op, r.status, string(body), nil)
	} else {
		logger.APIResponse(ctx, op, r.status, fmt.Sprintf("<%d bytes %s>", len(body), r.contentType), nil)
	}
	return r, nil
}

// errorDetail extracts FastAPI's {"detail": ...} message from an error body.
func errorDetail(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil && s != "" {
			return s
		}
		return truncate(string(payload.Detail))
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "<") {
		return truncate(text)
	}
	return http.StatusText(status)
}

func truncate(s string) string {
	if len(s) <= maxErrorDetail {
		return s
	}
	return s[:maxErrorDetail] + "..."
}

// observe publishes the outcome of a round trip on the event bus.
func (c *Client) observe(op string, start time.Time, status int, cached bool, err error) {
	if c.bus == nil {
		return
	}
	data := events.RemoteCallData{
		Operation:  op,
		StatusCode: status,
		Duration:   time.Since(start),
		Cached:     cached,
	}
	eventType := events.EventRemoteCallCompleted
	if err != nil {
		eventType = events.EventRemoteCallFailed
		data.ErrorKind = Kind(err)
		data.Error = err.Error()
		var se *ServiceError
		if errors.As(err, &se) {
			data.StatusCode = se.Status
		}
	}
	c.bus.Publish(events.New(eventType, c.sessionID, data))
}

func statusOf(r *response) int {
	if r == nil {
		return 0
	}
	return r.status
}
