// Package observe provides application-wide observability primitives for
// Sereno: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Sereno metrics.
const meterName = "github.com/MrWong99/sereno"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks the time from Start until the remote session
	// is open.
	ConnectDuration metric.Float64Histogram

	// SessionDuration tracks the lifetime of a live session from Start to
	// teardown.
	SessionDuration metric.Float64Histogram

	// PlaybackGap tracks the silence inserted when a chunk arrives after the
	// playback cursor fell behind the audio clock.
	PlaybackGap metric.Float64Histogram

	// --- Counters ---

	// CaptureFrames counts microphone frames. Use with attribute:
	//   attribute.String("status", "sent"|"dropped"|"failed")
	CaptureFrames metric.Int64Counter

	// PlaybackChunks counts inbound audio chunks. Use with attribute:
	//   attribute.String("status", "scheduled"|"dropped"), attribute.String("reason", ...)
	PlaybackChunks metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// TranscriptEntries counts persisted conversation entries. Use with
	// attribute:
	//   attribute.String("role", ...)
	TranscriptEntries metric.Int64Counter

	// --- Error counters ---

	// SessionErrors counts sessions that ended in the Errored state. Use with
	// attribute:
	//   attribute.String("kind", ...)
	SessionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets covers session lifetimes from seconds to the provider limit.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("sereno.session.connect.duration",
		metric.WithDescription("Time from session start until the remote session is open."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("sereno.session.duration",
		metric.WithDescription("Lifetime of a live voice session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackGap, err = m.Float64Histogram("sereno.playback.gap",
		metric.WithDescription("Silence inserted before a late audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(gapBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CaptureFrames, err = m.Int64Counter("sereno.capture.frames",
		metric.WithDescription("Total microphone frames by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("sereno.playback.chunks",
		metric.WithDescription("Total inbound audio chunks by status and reason."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("sereno.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Counter("sereno.transcript.entries",
		metric.WithDescription("Total persisted conversation entries by role."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SessionErrors, err = m.Int64Counter("sereno.session.errors",
		metric.WithDescription("Total sessions ended by an error, by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("sereno.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sereno.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCaptureFrame records one microphone frame with the given status.
func (m *Metrics) RecordCaptureFrame(ctx context.Context, status string) {
	m.CaptureFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordChunkScheduled records one inbound chunk handed to playback.
func (m *Metrics) RecordChunkScheduled(ctx context.Context) {
	m.PlaybackChunks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", "scheduled"),
			attribute.String("reason", ""),
		),
	)
}

// RecordChunkDropped records one inbound chunk dropped for reason.
func (m *Metrics) RecordChunkDropped(ctx context.Context, reason string) {
	m.PlaybackChunks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", "dropped"),
			attribute.String("reason", reason),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordTranscriptEntry records one persisted conversation entry.
func (m *Metrics) RecordTranscriptEntry(ctx context.Context, role string) {
	m.TranscriptEntries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordSessionError records a session that ended with an error of kind.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
