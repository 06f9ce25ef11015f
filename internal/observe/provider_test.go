package observe

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func histogramBounds(t *testing.T, rm metricdata.ResourceMetrics, name string) []float64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("metric %q has no histogram data points", name)
	}
	return hist.DataPoints[0].Bounds
}

func TestViews_HistogramBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMeterProvider(reader)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.PlaybackGap.Record(ctx, 0.015)
	m.HTTPRequestDuration.Record(ctx, 0.002)
	m.ConnectDuration.Record(ctx, 0.3)

	rm := collect(t, reader)
	if got := histogramBounds(t, rm, "sereno.playback.gap"); !slices.Equal(got, gapBuckets) {
		t.Errorf("playback.gap bounds = %v, want %v", got, gapBuckets)
	}
	if got := histogramBounds(t, rm, "sereno.http.request.duration"); !slices.Equal(got, httpBuckets) {
		t.Errorf("http.request.duration bounds = %v, want %v", got, httpBuckets)
	}
	// Instruments without a view keep their own hint.
	if got := histogramBounds(t, rm, "sereno.session.connect.duration"); !slices.Equal(got, latencyBuckets) {
		t.Errorf("connect.duration bounds = %v, want %v", got, latencyBuckets)
	}
}

func TestNewMetrics_PlaybackGapIsSubSecond(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.PlaybackGap.Record(context.Background(), 0.015)

	got := histogramBounds(t, collect(t, reader), "sereno.playback.gap")
	if got[0] >= 0.01 {
		t.Errorf("smallest gap bucket = %v, want below 10ms", got[0])
	}
}

func TestInitProvider_StdoutTraces(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	var out bytes.Buffer
	reader := sdkmetric.NewManualReader()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		TraceExporter:  TraceStdout,
		TraceOutput:    &out,
		MetricReader:   reader,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	_, span := StartSpan(context.Background(), "session.connect")
	span.End()

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.PlaybackGap.Record(context.Background(), 0.02)
	if got := histogramBounds(t, collect(t, reader), "sereno.playback.gap"); !slices.Equal(got, gapBuckets) {
		t.Errorf("global provider playback.gap bounds = %v, want %v", got, gapBuckets)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(out.String(), `"session.connect"`) {
		t.Errorf("span not exported, output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "sereno") {
		t.Errorf("service name missing from exported span:\n%s", out.String())
	}
}

func TestInitProvider_UnknownTraceExporter(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{
		TraceExporter: "jaeger",
		MetricReader:  sdkmetric.NewManualReader(),
	})
	if err == nil {
		t.Fatal("InitProvider accepted an unknown trace exporter")
	}
}
