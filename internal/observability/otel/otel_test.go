package otel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "disabled is always valid",
			cfg:     Config{Enabled: false, Protocol: "invalid", SampleRatio: -1},
			wantErr: false,
		},
		{
			name:    "valid otlphttp",
			cfg:     Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 0.5},
			wantErr: false,
		},
		{
			name:    "valid otlpgrpc",
			cfg:     Config{Enabled: true, Protocol: ProtocolGRPC, SampleRatio: 1.0},
			wantErr: false,
		},
		{
			name:    "invalid protocol",
			cfg:     Config{Enabled: true, Protocol: "invalid", SampleRatio: 1.0},
			wantErr: true,
		},
		{
			name:    "sample ratio below 0",
			cfg:     Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: -0.1},
			wantErr: true,
		},
		{
			name:    "sample ratio above 1",
			cfg:     Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 1.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Resolve(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}
	tests := []struct {
		name         string
		cfg          Config
		env          map[string]string
		wantProtocol string
		wantEndpoint string
	}{
		{"http default", Config{Protocol: ProtocolHTTP}, nil, ProtocolHTTP, "http://localhost:4318"},
		{"grpc default", Config{Protocol: ProtocolGRPC}, nil, ProtocolGRPC, "localhost:4317"},
		{"explicit endpoint wins", Config{Protocol: ProtocolHTTP, Endpoint: "collector:4318"},
			map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "env:4318"}, ProtocolHTTP, "collector:4318"},
		{"endpoint from env", Config{Protocol: ProtocolHTTP},
			map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "env:4318"}, ProtocolHTTP, "env:4318"},
		{"protocol from env", Config{},
			map[string]string{"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc"}, ProtocolGRPC, "localhost:4317"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.resolve(env(tt.env))
			if got.Protocol != tt.wantProtocol || got.Endpoint != tt.wantEndpoint {
				t.Errorf("resolve() = %s %s, want %s %s", got.Protocol, got.Endpoint, tt.wantProtocol, tt.wantEndpoint)
			}
			if got.ServiceName != "distguard" {
				t.Errorf("ServiceName = %q", got.ServiceName)
			}
		})
	}
}

func TestConfig_Sampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "ParentBased"},
	}
	for _, tt := range tests {
		desc := Config{SampleRatio: tt.ratio}.sampler().Description()
		if !strings.HasPrefix(desc, tt.want) {
			t.Errorf("sampler(%v) = %q, want prefix %q", tt.ratio, desc, tt.want)
		}
	}
}

func TestSpanCreatedWithAttributes(t *testing.T) {
	// Create in-memory span recorder
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	h := InitWithProvider(tp)
	ctx := context.Background()

	// Start and end a span
	ctx, span := h.Tracer.Start(ctx, "distguard.test",
		trace.WithAttributes(
			attribute.String("distguard.command", "test"),
			attribute.String("distguard.op_id", "abc-123"),
		),
	)
	span.SetStatus(codes.Ok, "success")
	span.End()

	// Force flush
	_ = tp.ForceFlush(ctx)

	// Check recorded spans
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if s.Name() != "distguard.test" {
		t.Errorf("span name = %q, want %q", s.Name(), "distguard.test")
	}

	// Check attributes
	attrs := s.Attributes()
	var foundCommand, foundOpID bool
	for _, attr := range attrs {
		switch string(attr.Key) {
		case "distguard.command":
			foundCommand = true
			if attr.Value.AsString() != "test" {
				t.Errorf("distguard.command = %q, want %q", attr.Value.AsString(), "test")
			}
		case "distguard.op_id":
			foundOpID = true
		}
	}
	if !foundCommand {
		t.Error("missing attribute: distguard.command")
	}
	if !foundOpID {
		t.Error("missing attribute: distguard.op_id")
	}
}

func TestSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	h := InitWithProvider(tp)
	ctx := context.Background()

	// Start span, record error, end
	_, span := h.Tracer.Start(ctx, "distguard.failing")
	testErr := errors.New("something went wrong")
	span.RecordError(testErr)
	span.SetStatus(codes.Error, "failed")
	span.End()

	_ = tp.ForceFlush(ctx)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	s := spans[0]
	if s.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", s.Status().Code)
	}

	// Check that error was recorded as an event
	events := s.Events()
	foundError := false
	for _, e := range events {
		if e.Name == "exception" {
			foundError = true
		}
	}
	if !foundError {
		t.Error("expected error event to be recorded")
	}
}

func TestStart_DisabledIsNoop(t *testing.T) {
	ctx, span := Start(context.Background(), "distguard.evaluate")
	if span.IsRecording() {
		t.Error("span should not record without a handle")
	}
	if trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Error("context should carry no span")
	}
	End(span, errors.New("ignored"))
}

func TestStart_EnabledRecords(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx := WithHandle(context.Background(), InitWithProvider(tp))

	_, span := Start(ctx, "distguard.evaluate", attribute.Int("distguard.rules", 3))
	End(span, errors.New("rule pack broken"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "distguard.evaluate" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
}

func TestContextRoundtrip(t *testing.T) {
	// Without handle
	ctx := context.Background()
	if h := From(ctx); h != nil {
		t.Error("expected nil handle from empty context")
	}

	// With handle
	handle := &Handle{}
	ctx = WithHandle(ctx, handle)
	if got := From(ctx); got != handle {
		t.Error("expected to retrieve the same handle from context")
	}
}
