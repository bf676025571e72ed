// Package observability provides tracing helpers.
package observability

import (
	"context"
	"hash/fnv"
	"time"
)

type traceIDKey struct{}

// WithTraceID stores the request trace ID for samplers to key on.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceIDFromContext returns the stored trace ID, if any.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// NoopTracer is a tracer that records nothing.
type NoopTracer struct{}

// NoopSpan is a span that records nothing.
type NoopSpan struct{}

// StartSpan starts a span that does nothing.
func (t NoopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

// SetAttribute is a no-op.
func (s NoopSpan) SetAttribute(key, value string) {}

// RecordError is a no-op.
func (s NoopSpan) RecordError(err error) {}

// End is a no-op.
func (s NoopSpan) End() {}

// HashSampler samples traces by hashing the trace ID.
type HashSampler struct {
	rate int
}

// NewHashSampler returns a HashSampler with the provided rate. A rate of N
// samples roughly one in N traces; zero disables sampling.
func NewHashSampler(rate int) HashSampler {
	return HashSampler{rate: rate}
}

// Sampled reports whether the trace should be sampled.
func (s HashSampler) Sampled(traceID string) bool {
	if traceID == "" {
		return false
	}
	rate := s.rate
	if rate <= 0 {
		return false
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(traceID))
	return int(hasher.Sum32()%uint32(rate)) == 0
}

// LogTracer emits completed spans as structured log lines for traces the
// sampler selects. It keys sampling on the trace ID carried in the context.
type LogTracer struct {
	logger  Logger
	sampler Sampler
}

// NewLogTracer constructs a LogTracer.
func NewLogTracer(logger Logger, sampler Sampler) *LogTracer {
	return &LogTracer{logger: logger, sampler: sampler}
}

// StartSpan starts a logging span when the trace is sampled, a noop span
// otherwise.
func (t *LogTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	if t == nil || t.logger == nil {
		return ctx, NoopSpan{}
	}
	traceID := TraceIDFromContext(ctx)
	if t.sampler != nil && !t.sampler.Sampled(traceID) {
		return ctx, NoopSpan{}
	}
	return ctx, &logSpan{
		name:    name,
		traceID: traceID,
		start:   time.Now(),
		logger:  t.logger,
	}
}

type logSpan struct {
	name    string
	traceID string
	start   time.Time
	logger  Logger
	attrs   map[string]string
	err     error
}

// SetAttribute records a span attribute.
func (s *logSpan) SetAttribute(key, value string) {
	if s.attrs == nil {
		s.attrs = make(map[string]string)
	}
	s.attrs[key] = value
}

// RecordError records the span error.
func (s *logSpan) RecordError(err error) {
	s.err = err
}

// End emits the span as a log line.
func (s *logSpan) End() {
	fields := map[string]any{
		"span":        s.name,
		"trace_id":    s.traceID,
		"duration_ms": time.Since(s.start).Milliseconds(),
	}
	for key, value := range s.attrs {
		fields[key] = value
	}
	if s.err != nil {
		fields["error"] = s.err.Error()
		s.logger.Error("span completed", fields)
		return
	}
	s.logger.Info("span completed", fields)
}
