// Package observe provides application-wide observability primitives for
// intervox: OpenTelemetry metrics, structured logging setup, and the
// Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all intervox metrics.
const meterName = "github.com/MrWong99/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FramesSent counts microphone frames delivered to the provider. Use with
	// attribute: attribute.String("provider", ...)
	FramesSent metric.Int64Counter

	// FrameSendErrors counts failed media sends by provider.
	FrameSendErrors metric.Int64Counter

	// PlaybackScheduled counts audio buffers handed to the playback scheduler.
	PlaybackScheduled metric.Int64Counter

	// PlaybackInterrupts counts barge-in interruptions.
	PlaybackInterrupts metric.Int64Counter

	// DecodeFailures counts inbound audio payloads that failed to decode.
	DecodeFailures metric.Int64Counter

	// TranscriptItems counts committed transcript items. Use with attribute:
	//   attribute.String("role", "user"|"model")
	TranscriptItems metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions (0 or 1 per process).
	ActiveSessions metric.Int64UpDownCounter

	// --- Histograms ---

	// TurnDuration tracks the wall-clock length of one conversation turn.
	TurnDuration metric.Float64Histogram
}

// turnBuckets defines histogram bucket boundaries (in seconds) sized for
// spoken conversation turns.
var turnBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 20, 40, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("intervox.capture.frames_sent",
		metric.WithDescription("Total microphone frames delivered to the provider."),
	); err != nil {
		return nil, err
	}
	if met.FrameSendErrors, err = m.Int64Counter("intervox.capture.send_errors",
		metric.WithDescription("Total failed media sends by provider."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackScheduled, err = m.Int64Counter("intervox.playback.scheduled",
		metric.WithDescription("Total audio buffers handed to the playback scheduler."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackInterrupts, err = m.Int64Counter("intervox.playback.interrupts",
		metric.WithDescription("Total barge-in interruptions."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("intervox.playback.decode_failures",
		metric.WithDescription("Total inbound audio payloads that failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptItems, err = m.Int64Counter("intervox.transcript.items",
		metric.WithDescription("Total committed transcript items by role."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervox.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("intervox.turn.duration",
		metric.WithDescription("Wall-clock length of one conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameSent records one delivered microphone frame.
func (m *Metrics) RecordFrameSent(ctx context.Context, provider string) {
	m.FramesSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordFrameSendError records one failed media send.
func (m *Metrics) RecordFrameSendError(ctx context.Context, provider string) {
	m.FrameSendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordTranscriptItem records one committed transcript item.
func (m *Metrics) RecordTranscriptItem(ctx context.Context, role string) {
	m.TranscriptItems.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}
