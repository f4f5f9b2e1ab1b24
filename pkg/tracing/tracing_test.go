package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/fjod/commerce-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_ExportsSpansToWriter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, logger.Nop(), Config{
		ServiceName: "cart-service-test",
		SampleRatio: 1,
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "CartService.AddItem")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Contains(t, buf.String(), "CartService.AddItem")
	assert.Contains(t, buf.String(), "cart-service-test")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-1))
	assert.Equal(t, 0.25, clamp(0.25))
	assert.Equal(t, 1.0, clamp(7))
}
