package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/globeview/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
)

// TracerName is the instrumentation scope used by every globe span.
const TracerName = "github.com/signalsfoundry/globeview"

// SessionAttribute is stamped on spans started under a stream or RPC
// session.
const SessionAttribute = "globe.session"

// Tracer returns the globe tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Exporter       string // stdout | otlp
	Endpoint       string // otlp collector, host:port
	Insecure       bool   // plaintext otlp
	SampleRatio    float64
	// Output receives stdout spans; nil means os.Stdout.
	Output io.Writer
}

// TracingConfigFromEnv reads tracing settings from GLOBE_* variables.
func TracingConfigFromEnv() TracingConfig {
	return TracingConfigFromLookup(os.Getenv)
}

// TracingConfigFromLookup is TracingConfigFromEnv with an injectable
// variable source.
func TracingConfigFromLookup(getenv func(string) string) TracingConfig {
	cfg := TracingConfig{
		Enabled:        strings.EqualFold(getenv("GLOBE_TRACING_ENABLED"), "true"),
		ServiceName:    orDefault(getenv("GLOBE_TRACING_SERVICE_NAME"), "globeview"),
		ServiceVersion: orDefault(getenv("GLOBE_TRACING_SERVICE_VERSION"), buildVersion()),
		Environment:    orDefault(getenv("GLOBE_ENV"), "development"),
		Exporter:       strings.ToLower(orDefault(getenv("GLOBE_TRACING_EXPORTER"), "stdout")),
		Endpoint:       orDefault(getenv("GLOBE_OTLP_ENDPOINT"), "localhost:4317"),
		Insecure:       !strings.EqualFold(getenv("GLOBE_OTLP_INSECURE"), "false"),
		SampleRatio:    1,
	}
	if raw := getenv("GLOBE_TRACING_SAMPLE_RATIO"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// InitTracing installs the global tracer provider described by cfg and
// returns its shutdown function. Disabled tracing installs a noop provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	log = logging.OrNoop(log)

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tp, err := NewTracerProvider(ctx, cfg, sdktrace.WithBatcher(exp))
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("service_version", cfg.ServiceVersion),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// NewTracerProvider builds the globe provider: a resource describing this
// engine instance, parent-based ratio sampling and session stamping. The
// exporter is supplied through opts.
func NewTracerProvider(ctx context.Context, cfg TracingConfig, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", orDefault(cfg.ServiceName, "globeview")),
			attribute.String("service.version", orDefault(cfg.ServiceVersion, "(devel)")),
			attribute.String("service.instance.id", uuid.NewString()),
			attribute.String("deployment.environment", orDefault(cfg.Environment, "development")),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	all := append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sessionProcessor{}),
	}, opts...)
	return sdktrace.NewTracerProvider(all...), nil
}

// sessionProcessor copies the session id from the start context onto the
// span, so asset, fetch and news spans triggered by a client carry it.
type sessionProcessor struct{}

func (sessionProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := logging.SessionIDFromContext(ctx); id != "" {
		s.SetAttributes(attribute.String(SessionAttribute, id))
	}
}

func (sessionProcessor) OnEnd(sdktrace.ReadOnlySpan)      {}
func (sessionProcessor) Shutdown(context.Context) error   { return nil }
func (sessionProcessor) ForceFlush(context.Context) error { return nil }

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout", "":
		w := cfg.Output
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans within five seconds and logs, rather
// than returns, any failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	log = logging.OrNoop(log)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
