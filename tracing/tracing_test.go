package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, InitWithExporter("gatekeep", "test", exporter))
	require.NoError(t, Init(&Config{}), "disabled config is a no-op")

	var testCases = []struct {
		description string
		name        string
		err         error
		expectCode  codes.Code
	}{
		{description: "ok span", name: "gate.intercept", expectCode: codes.Ok},
		{description: "error span", name: "gate.execute", err: errors.New("boom"), expectCode: codes.Error},
	}
	for _, testCase := range testCases {
		exporter.Reset()
		parentCtx, parent := StartSpan(context.Background(), "parent", KindServer)
		_, span := StartSpan(parentCtx, testCase.name, KindInternal)
		span.WithAttributes(map[string]string{"operation": "send_message"})
		EndSpan(span, testCase.err)
		EndSpan(parent, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 2, testCase.description)
		child := spans[0]
		assert.Equal(t, testCase.name, child.Name, testCase.description)
		assert.Equal(t, testCase.expectCode, child.Status.Code, testCase.description)
		assert.Contains(t, child.Attributes, attribute.String("operation", "send_message"), testCase.description)
		assert.Equal(t, spans[1].SpanContext.SpanID(), child.Parent.SpanID(), testCase.description)
	}
}

func TestNilSpan(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() {
		span.WithAttributes(map[string]string{"k": "v"})
		span.SetStatus(nil)
		EndSpan(span, nil)
	})
}
