package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// serviceName is reported as service.name on every metric and span.
const serviceName = "aiprof"

// Telemetry owns the OpenTelemetry SDK providers of a server process and the
// Prometheus registry its /metrics endpoint is served from. Create it with
// [StartTelemetry] and release it with [Telemetry.Shutdown].
type Telemetry struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
	metrics  *Metrics
}

type telemetryOptions struct {
	version     string
	attrs       []attribute.KeyValue
	exporter    sdktrace.SpanExporter
	sampleRatio float64
	global      bool
}

// TelemetryOption configures [StartTelemetry].
type TelemetryOption func(*telemetryOptions)

// WithServiceVersion sets service.version, normally the binary's version.
func WithServiceVersion(v string) TelemetryOption {
	return func(o *telemetryOptions) { o.version = v }
}

// WithResourceAttributes adds attributes describing this deployment, such as
// the configured store driver or LLM provider.
func WithResourceAttributes(attrs ...attribute.KeyValue) TelemetryOption {
	return func(o *telemetryOptions) { o.attrs = append(o.attrs, attrs...) }
}

// WithSpanExporter batches finished spans to exp. Without one, spans are
// sampled and recorded but never leave the process.
func WithSpanExporter(exp sdktrace.SpanExporter) TelemetryOption {
	return func(o *telemetryOptions) { o.exporter = exp }
}

// WithSampleRatio samples the given fraction of new traces. Child spans
// follow their parent's decision. Values outside (0, 1] keep the default of 1.
func WithSampleRatio(r float64) TelemetryOption {
	return func(o *telemetryOptions) {
		if r > 0 && r <= 1 {
			o.sampleRatio = r
		}
	}
}

// WithoutGlobal keeps the providers out of the otel globals. Tests use it so
// that parallel runs do not replace each other's providers.
func WithoutGlobal() TelemetryOption {
	return func(o *telemetryOptions) { o.global = false }
}

// StartTelemetry builds the metric and trace providers. Metrics are exported
// through a dedicated Prometheus registry that also carries the Go runtime
// and process collectors. Unless [WithoutGlobal] is given, both providers
// become the otel globals, which [DefaultMetrics] and [StartSpan] use.
func StartTelemetry(ctx context.Context, opts ...TelemetryOption) (*Telemetry, error) {
	o := telemetryOptions{sampleRatio: 1, global: true}
	for _, opt := range opts {
		opt(&o)
	}

	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(o.version),
	}, o.attrs...)
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	if err := errors.Join(
		reg.Register(collectors.NewGoCollector()),
		reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	); err != nil {
		return nil, fmt.Errorf("observe: register runtime collectors: %w", err)
	}
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{registry: reg}
	t.meters = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.sampleRatio))),
	}
	if o.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.exporter))
	}
	t.tracer = sdktrace.NewTracerProvider(tpOpts...)

	if t.metrics, err = NewMetrics(t.meters); err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}

	if o.global {
		otel.SetMeterProvider(t.meters)
		otel.SetTracerProvider(t.tracer)
	}
	return t, nil
}

// Metrics returns the instruments bound to this telemetry's meter provider.
func (t *Telemetry) Metrics() *Metrics { return t.metrics }

// Handler serves the registry in the Prometheus text or OpenMetrics format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry:          t.registry,
		EnableOpenMetrics: true,
	})
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.tracer.Shutdown(ctx))
}
