package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.TracingConfig
		wantErr bool
	}{
		{"disabled", domain.TracingConfig{Protocol: "zipkin", SampleRatio: -1}, false},
		{"http", domain.TracingConfig{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 0.5}, false},
		{"grpc", domain.TracingConfig{Enabled: true, Protocol: ProtocolGRPC, SampleRatio: 1}, false},
		{"bad protocol", domain.TracingConfig{Enabled: true, Protocol: "zipkin", SampleRatio: 1}, true},
		{"ratio too high", domain.TracingConfig{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit_Disabled(t *testing.T) {
	h, err := Init(context.Background(), domain.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := h.Tracer.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected no-op span when tracing is disabled")
	}
	span.End()
	if err := h.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestWithProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	h := WithProvider(tp)
	_, span := h.Tracer.Start(context.Background(), "underwriter.check")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "underwriter.check" {
		t.Fatalf("expected one recorded span, got %d", len(spans))
	}
	if got := spans[0].InstrumentationScope().Name; got != TracerName {
		t.Errorf("expected scope %q, got %q", TracerName, got)
	}
}

func TestSampler(t *testing.T) {
	if sampler(1).Description() != sdktrace.AlwaysSample().Description() {
		t.Error("expected always-on sampler for ratio 1")
	}
	if sampler(0).Description() != sdktrace.NeverSample().Description() {
		t.Error("expected always-off sampler for ratio 0")
	}
}
