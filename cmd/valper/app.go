package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/cache"
	"github.com/testing-zone/Valper-AI/config"
	"github.com/testing-zone/Valper-AI/controller"
	"github.com/testing-zone/Valper-AI/events"
	"github.com/testing-zone/Valper-AI/logger"
	"github.com/testing-zone/Valper-AI/manual"
	"github.com/testing-zone/Valper-AI/metrics"
	"github.com/testing-zone/Valper-AI/monitor"
	"github.com/testing-zone/Valper-AI/remote"
	"github.com/testing-zone/Valper-AI/telemetry"
)

const shutdownTimeout = 5 * time.Second

// app holds every wired component of one client session.
type app struct {
	cfg       *config.Config
	sessionID string

	bus      *events.EventBus
	client   *remote.Client
	devices  *audio.Devices
	capture  *audio.CaptureSession
	playback *audio.PlaybackSession
	ctrl     *controller.Controller
	flow     *manual.Flow

	exporter *metrics.Exporter
	hub      *monitor.Hub
	tracer   *sdktrace.TracerProvider
	traces   *telemetry.Listener

	closers []func() error
}

// newClient builds the backend client with the configured synthesis cache.
func newClient(ctx context.Context, cfg *config.Config, bus *events.EventBus, sessionID string, tp trace.TracerProvider) (*remote.Client, func() error, error) {
	store, closeStore, err := cache.Open(ctx, cfg.CacheConfig())
	if err != nil {
		return nil, nil, err
	}
	opts := []remote.Option{
		remote.WithAPIPrefix(cfg.Server.APIPrefix),
		remote.WithTimeout(cfg.Server.Timeout),
		remote.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		remote.WithAssistantTextExpression(cfg.Pipeline.AssistantTextExpression),
	}
	if store != nil {
		opts = append(opts, remote.WithSynthesisCache(store))
	}
	if bus != nil {
		opts = append(opts, remote.WithEventBus(bus, sessionID))
	}
	if tp != nil {
		opts = append(opts, remote.WithTracerProvider(tp))
	}
	return remote.NewClient(cfg.Server.URL, opts...), closeStore, nil
}

// newApp opens the devices and wires the controller, the manual flow and
// the optional observability surfaces.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		bus:       events.NewEventBus(),
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if err := a.setupTelemetry(ctx); err != nil {
		return nil, err
	}

	var tp trace.TracerProvider
	if a.tracer != nil {
		tp = a.tracer
	}
	client, closeStore, err := newClient(ctx, cfg, a.bus, a.sessionID, tp)
	if err != nil {
		return nil, err
	}
	a.client = client
	a.closers = append(a.closers, closeStore)

	a.devices, err = audio.OpenDevices(cfg.DeviceConfig())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.devices.Close)

	a.capture = audio.NewCaptureSession(a.devices.Microphone, audio.WithChunkObserver(a.onChunk))
	a.playback = audio.NewPlaybackSession(a.devices.Speaker, audio.WithPlaybackObserver(a.onPlayback))
	a.closers = append(a.closers, a.playback.Close)

	a.ctrl = controller.New(a.capture, a.playback, a.client,
		controller.WithEventBus(a.bus, a.sessionID),
		controller.WithVoice(cfg.Pipeline.Voice),
		controller.WithStageTimeout(cfg.Pipeline.StageTimeout),
		controller.WithHealthInterval(cfg.Pipeline.HealthInterval),
	)
	a.flow = manual.NewFlow(a.ctrl, a.client, a.client, a.playback,
		manual.WithEventBus(a.bus, a.sessionID))

	if err := a.setupMetrics(); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *app) setupTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.NewTracerProvider(ctx, a.cfg.TraceConfig(GetVersion()))
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	telemetry.SetupPropagation()
	a.tracer = tp
	a.traces = telemetry.NewListener(telemetry.Tracer(tp))
	a.bus.SubscribeAll(a.traces.OnEvent)
	return nil
}

// setupMetrics records bus events into the client metrics when either the
// endpoint or the exit summary is enabled. Only the endpoint listens.
func (a *app) setupMetrics() error {
	if !a.cfg.Metrics.Enabled && !a.cfg.Metrics.Summary {
		return nil
	}
	a.bus.SubscribeAll(metrics.NewListener().Listener())
	a.exporter = metrics.NewExporter(a.cfg.Metrics.Addr)
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	if a.cfg.Metrics.Monitor {
		a.hub = monitor.NewHub()
		a.hub.Attach(a.bus)
		a.exporter.Mount("/events", a.hub)
	}
	if err := a.exporter.Start(); err != nil {
		return fmt.Errorf("start metrics exporter: %w", err)
	}
	logger.Info("Metrics exporter listening", "addr", a.exporter.Addr(), "monitor", a.hub != nil)
	return nil
}

// writeSummary prints the client metrics gathered during the session.
func (a *app) writeSummary(w io.Writer) error {
	if a.exporter == nil || !a.cfg.Metrics.Summary {
		return nil
	}
	return a.exporter.WriteText(w)
}

func (a *app) onChunk(chunk []byte) {
	a.bus.Publish(events.New(events.EventCaptureChunk, a.sessionID, events.CaptureData{
		Bytes: len(chunk),
		Level: audio.Level(chunk),
	}))
}

func (a *app) onPlayback(ev audio.PlaybackEvent) {
	a.bus.Publish(events.New(events.EventPlaybackFinished, a.sessionID, events.PlaybackData{
		AttemptID: ev.AttemptID,
		Outcome:   string(ev.Outcome),
		Reason:    ev.Reason,
	}))
}

// Close stops the controller first so no new audio starts, then releases
// the devices and flushes the observability surfaces.
func (a *app) Close() error {
	var errs []error
	if a.ctrl != nil {
		errs = append(errs, a.ctrl.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.hub != nil {
		a.hub.Close()
	}
	if a.exporter != nil {
		errs = append(errs, a.exporter.Shutdown(ctx))
	}
	a.bus.Close()
	if a.traces != nil {
		a.traces.Flush()
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
