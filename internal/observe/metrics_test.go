package observe_test

import (
	"context"
	"testing"

	"github.com/MrWong99/intervox/internal/observe"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.FramesSent == nil || m.FrameSendErrors == nil || m.PlaybackScheduled == nil ||
		m.PlaybackInterrupts == nil || m.DecodeFailures == nil || m.TranscriptItems == nil ||
		m.ActiveSessions == nil || m.TurnDuration == nil {
		t.Error("NewMetrics left instruments nil")
	}
}

func TestRecordHelpers_ProduceDataPoints(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordFrameSent(ctx, "gemini")
	m.RecordFrameSendError(ctx, "gemini")
	m.RecordTranscriptItem(ctx, "user")
	m.ActiveSessions.Add(ctx, 1)
	m.TurnDuration.Record(ctx, 4.2)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("no scope metrics collected")
	}

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			names[met.Name] = true
		}
	}
	for _, want := range []string{
		"intervox.capture.frames_sent",
		"intervox.capture.send_errors",
		"intervox.transcript.items",
		"intervox.active_sessions",
		"intervox.turn.duration",
	} {
		if !names[want] {
			t.Errorf("metric %q not collected; got %v", want, names)
		}
	}
}

func TestInitProvider_ReturnsWorkingShutdown(t *testing.T) {
	// Not parallel: InitProvider mutates the global meter provider.
	ctx := context.Background()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "intervox-test",
		ServiceVersion: "0.0.0-test",
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
