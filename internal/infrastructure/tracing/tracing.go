package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds tracing configuration. OutputPath is "stdout", "stderr" or a file path.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OutputPath     string
	SampleRatio    float64
}

// Provider owns the tracer provider and the exporter sink
type Provider struct {
	tp     trace.TracerProvider
	sdk    *sdktrace.TracerProvider
	closer io.Closer
}

// Init builds a provider from cfg and installs it as the global tracer provider. A
// disabled config installs nothing and returns a no-op provider.
func Init(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tp: noop.NewTracerProvider()}, nil
	}

	w, closer, err := openSink(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	p, err := NewWithExporter(cfg, exporter)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	p.closer = closer

	otel.SetTracerProvider(p.sdk)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return p, nil
}

// NewWithExporter builds a provider around any span exporter without touching globals
func NewWithExporter(cfg Config, exporter sdktrace.SpanExporter) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	return &Provider{tp: tp, sdk: tp}, nil
}

// Tracer returns a named tracer of this provider
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Enabled reports whether spans are exported
func (p *Provider) Enabled() bool {
	return p.sdk != nil
}

// Shutdown flushes pending spans and closes the sink
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	err := p.sdk.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func openSink(path string) (io.Writer, io.Closer, error) {
	switch path {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace output %s: %w", path, err)
	}
	return f, f, nil
}
