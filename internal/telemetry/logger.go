package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger. Format is "json" or "text".
// Level is one of: debug, info, warn, error.
func NewLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: redactAttr}
	var handler slog.Handler

	var w io.Writer = os.Stdout
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	jobIDKey        contextKey = "job_id"
	generationIDKey contextKey = "generation_id"
)

// WithRequestID returns a context carrying requestId for later log enrichment.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context, if any.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithJobID returns a context carrying jobId for later log enrichment.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext extracts the job ID from the context, if any.
func JobIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(jobIDKey).(string)
	return v
}

// WithGenerationID returns a context carrying generationId for later log enrichment.
func WithGenerationID(ctx context.Context, generationID string) context.Context {
	return context.WithValue(ctx, generationIDKey, generationID)
}

// GenerationIDFromContext extracts the generation ID from the context, if any.
func GenerationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(generationIDKey).(string)
	return v
}

// FromContext builds the standard set of slog attributes carried on every
// admission/worker log line (§4.8): request_id, and job_id/generation_id
// when present.
func FromContext(ctx context.Context) []any {
	attrs := make([]any, 0, 6)
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if id := JobIDFromContext(ctx); id != "" {
		attrs = append(attrs, "job_id", id)
	}
	if id := GenerationIDFromContext(ctx); id != "" {
		attrs = append(attrs, "generation_id", id)
	}
	return attrs
}
