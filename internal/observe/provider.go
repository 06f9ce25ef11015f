package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Trace exporter names accepted by [ProviderConfig.TraceExporter].
const (
	TraceNone   = "none"
	TraceStdout = "stdout"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "sereno".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// TraceExporter is [TraceNone] (spans are recorded for log correlation
	// but never exported) or [TraceStdout]. Empty means [TraceNone].
	TraceExporter string

	// TraceOutput receives stdout spans. Default: os.Stderr, so the status
	// line on stdout stays intact.
	TraceOutput io.Writer

	// MetricReader replaces the Prometheus exporter. Tests pass a
	// [sdkmetric.ManualReader].
	MetricReader sdkmetric.Reader
}

// gapBuckets resolves the playback gaps a listener can hear, from a single
// render block up to a stalled stream.
var gapBuckets = []float64{
	0.005, 0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56,
}

// httpBuckets covers the ops endpoints; /visualizer.png encodes a frame.
var httpBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// Views returns the histogram bucket overrides applied by
// [NewMeterProvider]. They take precedence over the instrument hints in
// [NewMetrics].
func Views() []sdkmetric.View {
	hist := func(name string, bounds []float64) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
		)
	}
	return []sdkmetric.View{
		hist("sereno.playback.gap", gapBuckets),
		hist("sereno.http.request.duration", httpBuckets),
	}
}

// NewMeterProvider builds a meter provider for reader with [Views] applied.
func NewMeterProvider(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	opts = append(opts, sdkmetric.WithReader(reader), sdkmetric.WithView(Views()...))
	return sdkmetric.NewMeterProvider(opts...)
}

func newSpanExporter(cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case "", TraceNone:
		return nil, nil
	case TraceStdout:
		w := cfg.TraceOutput
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("observe: unknown trace exporter %q", cfg.TraceExporter)
	}
}

// InitProvider initialises the OTel SDK and registers the providers as the
// global ones:
//
//   - a [sdkmetric.MeterProvider] with [Views] applied, reading into the
//     Prometheus exporter behind /metrics (or cfg.MetricReader);
//   - a [sdktrace.TracerProvider] exporting through the exporter named by
//     cfg.TraceExporter.
//
// The returned function flushes and closes both. Call it in a defer from
// main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sereno"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	spanExp, err := newSpanExporter(cfg)
	if err != nil {
		return nil, err
	}

	reader := cfg.MetricReader
	if reader == nil {
		if reader, err = promexporter.New(); err != nil {
			return nil, err
		}
	}
	mp := NewMeterProvider(reader, sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if spanExp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(spanExp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
