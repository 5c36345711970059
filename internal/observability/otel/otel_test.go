package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled ignores fields", Config{Protocol: "bogus", SampleRatio: -1}, false},
		{"http", Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 0.25}, false},
		{"grpc", Config{Enabled: true, Protocol: ProtocolGRPC, SampleRatio: 1}, false},
		{"bad protocol", Config{Enabled: true, Protocol: "zipkin", SampleRatio: 1}, true},
		{"ratio too low", Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: -0.5}, true},
		{"ratio too high", Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() = %v", err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, ServiceName, cfg.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func recordingContext(t *testing.T) (context.Context, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return WithHandle(context.Background(), InitWithProvider(tp)), recorder
}

func TestStartSpan_RecordsAttributes(t *testing.T) {
	ctx, recorder := recordingContext(t)

	_, span := StartSpan(ctx, "skillvet.scan.target",
		attribute.String("skillvet.skill", "deploy"),
		attribute.Int("skillvet.index", 2),
	)
	EndSpan(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "skillvet.scan.target", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	got := map[string]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		got[string(kv.Key)] = kv.Value
	}
	assert.Equal(t, "deploy", got["skillvet.skill"].AsString())
	assert.Equal(t, int64(2), got["skillvet.index"].AsInt64())
}

func TestEndSpan_RecordsError(t *testing.T) {
	ctx, recorder := recordingContext(t)

	_, span := StartSpan(ctx, "skillvet.scan")
	EndSpan(span, errors.New("analyzer crashed"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var names []string
	for _, e := range spans[0].Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "exception")
}

func TestStartSpan_WithoutHandle(t *testing.T) {
	ctx := context.Background()
	got, span := StartSpan(ctx, "skillvet.scan")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())
	EndSpan(span, errors.New("ignored"))
}

func TestContextRoundtrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, From(ctx))

	h := &Handle{}
	assert.Same(t, h, From(WithHandle(ctx, h)))
}

func TestResolveEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	assert.Equal(t, "http://localhost:4318", resolveEndpoint(Config{Protocol: ProtocolHTTP}))
	assert.Equal(t, "localhost:4317", resolveEndpoint(Config{Protocol: ProtocolGRPC}))
	assert.Equal(t, "collector:4318", resolveEndpoint(Config{Endpoint: "collector:4318"}))

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://otel.example:4318")
	assert.Equal(t, "https://otel.example:4318", resolveEndpoint(Config{Protocol: ProtocolHTTP}))
}
