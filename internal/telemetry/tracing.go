package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const tracerName = "github.com/wisbric/admissiond"

// NewTracerProvider builds an otel TracerProvider for the admission and
// worker suspension points named in spec §5 (idempotency lookup, each
// enforcement script, DB transaction, queue publish; generator invocation
// in the worker). When otlpEndpoint is set, spans are batch-exported over
// gRPC to that collector; when debug is also set, spans are additionally
// logged in-process for local development. With neither set, the provider
// is a no-op sampler sink that only pays for span creation, not export.
func NewTracerProvider(ctx context.Context, otlpEndpoint string, debug bool) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if otlpEndpoint != "" {
		conn, err := grpc.NewClient(otlpEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dialing otlp collector at %s: %w", otlpEndpoint, err)
		}
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithGRPCConn(conn)))
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	if debug {
		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(&logExporter{})))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartSpan starts a span named for the given suspension point, tagging it
// with the request id carried on ctx.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if id := RequestIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("request_id", id))
	}
	return ctx, span
}

// logExporter is a minimal spanExporter that writes span names to the
// default slog logger, used only when OTEL_DEBUG is set.
type logExporter struct{}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		slog.Debug("span", "name", s.Name(), "duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds())
	}
	return nil
}

func (e *logExporter) Shutdown(ctx context.Context) error { return nil }
