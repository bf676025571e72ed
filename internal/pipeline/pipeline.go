// Package pipeline provides a generic ordered, conditional middleware chain.
// The admission engine and its sibling checks plug into it; the pipeline
// itself knows nothing about rate limiting.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
)

// Next advances the chain to the following middleware.
type Next func(ctx context.Context) error

// Handler is one unit of work in the chain. It must call next to continue;
// a handler that neither calls next nor aborts the context silently
// truncates the chain. That contract sits with the caller, the pipeline
// does not enforce it.
type Handler func(ctx context.Context, mctx *domain.Context, next Next) error

// Config describes a registered middleware.
type Config struct {
	Name       string
	Priority   int
	Enabled    bool
	Conditions *Conditions
	Handler    Handler
}

// Pipeline executes registered middlewares in priority order. Construct one
// per composition root and pass it by reference; there is no global instance.
type Pipeline struct {
	mu          sync.RWMutex
	middlewares []*Config

	tracer  observability.Tracer
	metrics observability.Metrics
	logger  observability.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTracer sets the pipeline tracer.
func WithTracer(tracer observability.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithMetrics sets the pipeline metrics recorder.
func WithMetrics(metrics observability.Metrics) Option {
	return func(p *Pipeline) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New constructs a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		tracer:  observability.NoopTracer{},
		metrics: observability.NewInMemoryMetrics(),
		logger:  observability.NewStdLogger(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Use registers a middleware. Names must be unique.
func (p *Pipeline) Use(cfg *Config) error {
	if p == nil || cfg == nil {
		return errors.New("middleware config is required")
	}
	if cfg.Name == "" {
		return errors.New("middleware name is required")
	}
	if cfg.Handler == nil {
		return errors.New("middleware handler is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.middlewares {
		if existing.Name == cfg.Name {
			return errors.New("middleware already registered: " + cfg.Name)
		}
	}
	registered := *cfg
	p.middlewares = append(p.middlewares, &registered)
	return nil
}

// Remove unregisters a middleware by name.
func (p *Pipeline) Remove(name string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.middlewares {
		if existing.Name == name {
			p.middlewares = append(p.middlewares[:i], p.middlewares[i+1:]...)
			return true
		}
	}
	return false
}

// SetEnabled toggles a middleware by name.
func (p *Pipeline) SetEnabled(name string, enabled bool) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.middlewares {
		if existing.Name == name {
			existing.Enabled = enabled
			return true
		}
	}
	return false
}

// Execute runs every enabled middleware whose conditions match the context,
// lowest priority first. Execution stops as soon as the context is aborted.
// Middleware errors propagate to the caller unrecovered.
func (p *Pipeline) Execute(ctx context.Context, mctx *domain.Context) error {
	if p == nil || mctx == nil {
		return errors.New("pipeline context is required")
	}
	selected := p.selectFor(mctx)
	if len(selected) == 0 {
		return nil
	}

	var run func(ctx context.Context, index int) error
	run = func(ctx context.Context, index int) error {
		if mctx.Aborted || index >= len(selected) {
			return nil
		}
		mw := selected[index]
		ctx, span := p.tracer.StartSpan(ctx, "middleware."+mw.Name)
		span.SetAttribute("priority", strconv.Itoa(mw.Priority))
		start := time.Now()
		err := mw.Handler(ctx, mctx, func(ctx context.Context) error {
			return run(ctx, index+1)
		})
		if err != nil {
			span.RecordError(err)
			p.metrics.IncStageError(mw.Name)
			p.logger.Error("middleware stage failed", map[string]any{
				"stage":      mw.Name,
				"request_id": mctx.Request.ID,
				"error":      err.Error(),
			})
		}
		span.End()
		p.metrics.ObserveLatency("stage."+mw.Name, time.Since(start))
		return err
	}
	return run(ctx, 0)
}

// selectFor snapshots the applicable middlewares in execution order.
func (p *Pipeline) selectFor(mctx *domain.Context) []*Config {
	p.mu.RLock()
	defer p.mu.RUnlock()

	selected := make([]*Config, 0, len(p.middlewares))
	for _, mw := range p.middlewares {
		if !mw.Enabled {
			continue
		}
		if !mw.Conditions.Match(mctx) {
			continue
		}
		selected = append(selected, mw)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority < selected[j].Priority
	})
	return selected
}
