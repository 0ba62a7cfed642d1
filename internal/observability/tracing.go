package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/usbl-simulator/internal/logging"
)

// Span exporters understood by InitTracing.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	defaultOTLPEndpoint = "localhost:4317"
	defaultServiceName  = "usbl-transponder-sim"
)

// Resource attribute keys describing the simulated deployment.
const (
	AttrScenario     = attribute.Key("usbl.scenario")
	AttrTransponders = attribute.Key("usbl.transponders")
	AttrTick         = attribute.Key("usbl.tick")
)

// TracingConfig governs how the simulator exports interrogation spans.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	Endpoint    string
	SampleRatio float64

	// Deployment description attached to every span's resource.
	Scenario     string
	Transponders []string
	Tick         time.Duration

	// Writer receives stdout-exported spans; os.Stdout when nil.
	Writer io.Writer
}

// TracingConfigFromEnv reads the USBL_TRACING_* variables.
func TracingConfigFromEnv() TracingConfig {
	return tracingConfigFrom(os.LookupEnv)
}

func tracingConfigFrom(lookup func(string) (string, bool)) TracingConfig {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := TracingConfig{
		Enabled:     strings.EqualFold(get("USBL_TRACING_ENABLED", "false"), "true"),
		ServiceName: get("USBL_TRACING_SERVICE_NAME", defaultServiceName),
		Exporter:    strings.ToLower(get("USBL_TRACING_EXPORTER", ExporterStdout)),
		Endpoint:    get("USBL_OTLP_ENDPOINT", ""),
		SampleRatio: 1,
	}
	// Out-of-range ratios keep the default of sampling every cycle.
	if r, err := strconv.ParseFloat(get("USBL_TRACING_SAMPLE_RATIO", "1"), 64); err == nil && r >= 0 && r <= 1 {
		cfg.SampleRatio = r
	}
	return cfg
}

// WithDeployment returns a copy of cfg describing the loaded scenario and its
// transponder nodes.
func (cfg TracingConfig) WithDeployment(scenario string, transponders []string, tick time.Duration) TracingConfig {
	cfg.Scenario = scenario
	cfg.Transponders = append([]string(nil), transponders...)
	sort.Strings(cfg.Transponders)
	cfg.Tick = tick
	return cfg
}

// InitTracing installs the global tracer provider and propagators and returns
// a shutdown function that flushes pending spans. With tracing disabled a noop
// provider is installed and shutdown does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
		logging.Int("transponders", len(cfg.Transponders)),
	)
	return tp.Shutdown, nil
}

// newResource names the service and the transponder set it simulates.
func newResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", service),
		attribute.String("service.namespace", "usbl"),
	}
	if cfg.Scenario != "" {
		attrs = append(attrs, AttrScenario.String(cfg.Scenario))
	}
	if len(cfg.Transponders) > 0 {
		attrs = append(attrs, AttrTransponders.StringSlice(cfg.Transponders))
	}
	if cfg.Tick > 0 {
		attrs = append(attrs, AttrTick.String(cfg.Tick.String()))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}
	return res, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout, "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans through shutdown, giving up after five
// seconds. Errors are logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
