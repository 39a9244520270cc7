package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestTracerProvider_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	tp, err := NewTracerProvider("browsercast", "test", &buf)
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "session.open")
	span.SetAttributes(AttrSessionID.String("s-1"), AttrPlatform.String("x"))
	RecordError(ctx, errors.New("net::ERR_ABORTED"))
	RecordError(ctx, nil)
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, `"Name":"session.open"`)
	assert.Contains(t, out, "browsercast.session.id")
	assert.Contains(t, out, "net::ERR_ABORTED")
}

func TestTracerProvider_NilShutdown(t *testing.T) {
	var tp *TracerProvider
	assert.NoError(t, tp.Shutdown(context.Background()))
}
