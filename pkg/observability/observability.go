// Package observability sets up OpenTelemetry tracing and metrics. Metrics
// are exported in Prometheus format.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Config selects what Setup installs.
type Config struct {
	ServiceName    string
	TracingEnabled bool
}

// Provider owns the installed tracer and meter providers.
type Provider struct {
	Meter   metric.Meter
	Metrics *Metrics
	handler http.Handler
	tracing *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
}

// Setup installs a meter provider backed by a dedicated Prometheus registry
// and, when enabled, a stdout span exporter as the global tracer provider.
func Setup(cfg Config) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("observability: prometheus exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(meters)

	p := &Provider{
		Meter:   meters.Meter(cfg.ServiceName),
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		meters:  meters,
	}
	if p.Metrics, err = NewMetrics(p.Meter); err != nil {
		return nil, err
	}

	if cfg.TracingEnabled {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: stdouttrace exporter: %w", err)
		}
		p.tracing = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
		otel.SetTracerProvider(p.tracing)
	}
	return p, nil
}

// Handler serves the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracing != nil {
		errs = append(errs, p.tracing.Shutdown(ctx))
	}
	errs = append(errs, p.meters.Shutdown(ctx))
	return errors.Join(errs...)
}
