package internal

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"testing"
	"yappy/entity"
)

func tracedFlow(provider *fakeProvider) (*Flow, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := newTracerProvider("yappy-test", sdktrace.WithSpanProcessor(recorder))
	flow := newTestFlow(provider, DefaultRetryPolicy())
	flow.tracer = tp.Tracer(tracerName)
	return flow, recorder
}

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	names := make([]string, 0, len(spans))
	for _, span := range spans {
		names = append(names, span.Name())
	}
	return names
}

func spanAttribute(span sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestFlowSpans(t *testing.T) {
	flow, recorder := tracedFlow(newFakeProvider("PENDING", "COMPLETED"))

	result, _, err := runFlow(t, flow, testRequest())
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeSuccess, result.Outcome)

	spans := recorder.Ended()
	assert.Equal(t, []string{
		"payment.open_session",
		"payment.generate_qr",
		"payment.poll_status",
		"payment.close_session",
		"payment.flow",
	}, spanNames(spans))

	root := spans[len(spans)-1]
	assert.Equal(t, "ORDER0000000001", spanAttribute(root, "order.id").AsString())
	assert.Equal(t, string(entity.OutcomeSuccess), spanAttribute(root, "flow.outcome").AsString())
	assert.Equal(t, codes.Unset, root.Status().Code)
	for _, span := range spans[:len(spans)-1] {
		assert.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID(), span.Name())
		assert.Equal(t, root.SpanContext().TraceID(), span.SpanContext().TraceID(), span.Name())
	}
	assert.Equal(t, int64(2), spanAttribute(spans[2], "poll.attempts").AsInt64())
}

func TestFlowSpansOnVoid(t *testing.T) {
	provider := newFakeProvider("PENDING")
	flow, recorder := tracedFlow(provider)
	provider.onStatus = func(call int) {
		if call == 2 {
			_ = flow.Cancel(context.Background())
		}
	}

	result, _, err := runFlow(t, flow, testRequest())
	require.NoError(t, err)
	require.Equal(t, entity.OutcomeCancelled, result.Outcome)

	names := spanNames(recorder.Ended())
	assert.Contains(t, names, "payment.void_transaction")
	assert.Contains(t, names, "payment.close_session")
	assert.Equal(t, "payment.flow", names[len(names)-1])
}

func TestFlowSpanRecordsFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.openErr = &SessionError{Code: "YP-0001", Err: errors.New("device not found")}
	flow, recorder := tracedFlow(provider)

	result, _, err := runFlow(t, flow, testRequest())
	require.Error(t, err)
	require.Equal(t, entity.OutcomeFailed, result.Outcome)

	spans := recorder.Ended()
	root := spans[len(spans)-1]
	assert.Equal(t, "payment.flow", root.Name())
	assert.Equal(t, codes.Error, root.Status().Code)
	require.NotEmpty(t, root.Events())
	assert.Equal(t, "exception", root.Events()[0].Name)
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "yappy")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
