package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/globeview/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingConfigFromLookup(t *testing.T) {
	env := map[string]string{
		"GLOBE_TRACING_ENABLED":      "TRUE",
		"GLOBE_TRACING_EXPORTER":     "OTLP",
		"GLOBE_TRACING_SAMPLE_RATIO": "0.25",
		"GLOBE_OTLP_ENDPOINT":        "collector:4317",
	}
	cfg := TracingConfigFromLookup(func(k string) string { return env[k] })
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ServiceName != "globeview" || cfg.Environment != "development" || !cfg.Insecure || cfg.ServiceVersion == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	env["GLOBE_OTLP_INSECURE"] = "false"
	env["GLOBE_TRACING_SERVICE_VERSION"] = "v1.2.3"
	cfg = TracingConfigFromLookup(func(k string) string { return env[k] })
	if cfg.Insecure || cfg.ServiceVersion != "v1.2.3" {
		t.Fatalf("overrides ignored: %+v", cfg)
	}
}

func TestTracingConfigIgnoresBadRatio(t *testing.T) {
	cfg := TracingConfigFromLookup(func(k string) string {
		if k == "GLOBE_TRACING_SAMPLE_RATIO" {
			return "7"
		}
		return ""
	})
	if cfg.Enabled || cfg.SampleRatio != 1 || cfg.Exporter != "stdout" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	_, span := Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing should produce invalid span contexts")
	}
	span.End()
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestTracerProviderStampsSessionAndResource(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(),
		TracingConfig{ServiceVersion: "v9", Environment: "test"},
		sdktrace.WithSyncer(exp),
	)
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx := logging.ContextWithSessionID(context.Background(), "sess-1")
	_, span := tp.Tracer(TracerName).Start(ctx, "assets.load")
	span.End()
	_, plain := tp.Tracer(TracerName).Start(context.Background(), "news.refresh")
	plain.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}
	session := func(attrs []attribute.KeyValue) string {
		for _, kv := range attrs {
			if string(kv.Key) == SessionAttribute {
				return kv.Value.AsString()
			}
		}
		return ""
	}
	if got := session(spans[0].Attributes); got != "sess-1" {
		t.Fatalf("session attribute = %q, want sess-1", got)
	}
	if got := session(spans[1].Attributes); got != "" {
		t.Fatalf("span without session carries %q", got)
	}

	res := spans[0].Resource.Set()
	for key, want := range map[attribute.Key]string{
		"service.name":           "globeview",
		"service.version":        "v9",
		"deployment.environment": "test",
	} {
		if v, ok := res.Value(key); !ok || v.AsString() != want {
			t.Fatalf("resource %s = %v, want %q", key, v.AsString(), want)
		}
	}
	if v, ok := res.Value("service.instance.id"); !ok || v.AsString() == "" {
		t.Fatalf("resource missing service.instance.id")
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "stdout", Output: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer func() { _, _ = InitTracing(context.Background(), TracingConfig{}, nil) }()

	_, span := Tracer().Start(context.Background(), "globe.frame")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !strings.Contains(buf.String(), "globe.frame") {
		t.Fatalf("stdout exporter output missing span: %q", buf.String())
	}
}
