package telemetry_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/kernelproxy/internal/adapters/telemetry"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newRecordingTracer(t *testing.T) (*telemetry.OTelTracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return telemetry.NewOTelTracerFrom(tp, telemetry.InstrumentationName), recorder
}

func attributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestOTelTracer_Attributes(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)
	payload := []byte("ISO-10303-21;")

	_, span := tracer.Start(context.Background(), "shapes.solid.createBox")
	span.SetAttribute("request.uid", "u1")
	span.SetAttribute("cache.hit", true)
	span.SetAttribute("count", 3)
	span.SetAttribute("precision", 0.01)
	span.SetAttribute("hits", uint64(7))
	span.SetAttribute("hash", domain.Fingerprint(-12))
	span.SetAttribute("step", payload)
	span.SetAttribute("shape", struct{ n int }{1})
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "shapes.solid.createBox", ended[0].Name())

	attrs := attributes(ended[0])
	assert.Equal(t, "u1", attrs["request.uid"].AsString())
	assert.True(t, attrs["cache.hit"].AsBool())
	assert.Equal(t, int64(3), attrs["count"].AsInt64())
	assert.InDelta(t, 0.01, attrs["precision"].AsFloat64(), 1e-12)
	assert.Equal(t, "7", attrs["hits"].AsString())
	assert.Equal(t, "-12", attrs["hash"].AsString())
	assert.Equal(t, int64(len(payload)), attrs["step.size"].AsInt64())
	assert.Equal(t, strconv.FormatUint(xxhash.Sum64(payload), 16), attrs["step.xxhash"].AsString())
	assert.Equal(t, "{1}", attrs["shape"].AsString())
}

func TestOTelTracer_RecordError(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, span := tracer.Start(context.Background(), "shapes.nope")
	span.RecordError(errors.New("cannot resolve path"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "cannot resolve path", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestBridge_LogsFinishedSpans(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(telemetry.NewBridge(mockLogger)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := telemetry.NewOTelTracerFrom(tp, telemetry.InstrumentationName)

	gomock.InOrder(
		mockLogger.EXPECT().Debug(gomock.Cond(func(msg string) bool {
			return strings.HasPrefix(msg, "ok.op done in")
		})),
		mockLogger.EXPECT().Debug(gomock.Cond(func(msg string) bool {
			return strings.HasPrefix(msg, "bad.op failed after") && strings.HasSuffix(msg, ": boom")
		})),
	)

	_, span := tracer.Start(context.Background(), "ok.op")
	span.End()

	_, span = tracer.Start(context.Background(), "bad.op")
	span.RecordError(errors.New("boom"))
	span.End()
}
