package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/odvcencio/browsercast"

// Span attributes shared by the session, stream and supervisor spans.
var (
	AttrSessionID  = attribute.Key("browsercast.session.id")
	AttrPlatform   = attribute.Key("browsercast.platform")
	AttrURL        = attribute.Key("browsercast.url")
	AttrGeneration = attribute.Key("browsercast.browser.generation")
	AttrConnID     = attribute.Key("browsercast.conn.id")
)

// TracerProvider exports spans as newline-delimited JSON.
type TracerProvider struct {
	sdk *sdktrace.TracerProvider
}

// NewTracerProvider registers a global provider writing to w (stdout when
// nil). Spans are batched; Shutdown flushes them.
func NewTracerProvider(service, version string, w io.Writer) (*TracerProvider, error) {
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", version),
	)
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)
	return &TracerProvider{sdk: sdk}, nil
}

// Shutdown flushes and stops the exporter. Safe on a nil provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.sdk == nil {
		return nil
	}
	return tp.sdk.Shutdown(ctx)
}

// StartSpan starts a span on the global provider. Without NewTracerProvider
// the span is a no-op.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
