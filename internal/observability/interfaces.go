// Package observability defines tracing, metrics and logging interfaces.
package observability

import (
	"context"
	"time"
)

// Span captures tracing span operations.
type Span interface {
	SetAttribute(key, value string)
	RecordError(err error)
	End()
}

// Tracer is an optional tracing dependency.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Sampler decides if a trace should be sampled.
type Sampler interface {
	Sampled(traceID string) bool
}

// Metrics records admission measurements.
type Metrics interface {
	IncDecision(result string, algorithm string, policy string)
	ObserveLatency(op string, d time.Duration)
	IncStorageError(op string)
	IncDDoSDetected(level string)
	IncStageError(stage string)
}

// Logger provides structured logging hooks.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}
