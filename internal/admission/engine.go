// Package admission provides the rate limiting engine, the public entry
// point for admission control decisions.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

// Engine orchestrates identifier resolution, allow/deny lists, abuse
// detection and algorithm dispatch. It is constructed explicitly and passed
// by reference; there is no process-wide instance.
type Engine struct {
	mu         sync.RWMutex
	configs    map[string]*Config
	algorithms map[Algorithm]algorithm

	store    store.CounterStore
	detector *DDoSDetector
	breaker  *storeBreaker
	logger   observability.Logger
	metrics  observability.Metrics
	tracer   observability.Tracer
	enabled  atomic.Bool
	now      func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the engine metrics recorder.
func WithMetrics(metrics observability.Metrics) EngineOption {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithTracer sets the engine tracer.
func WithTracer(tracer observability.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithBreakerOptions tunes the store circuit breaker.
func WithBreakerOptions(opts BreakerOptions) EngineOption {
	return func(e *Engine) {
		e.breaker = newStoreBreaker(opts)
	}
}

// NewEngine constructs an engine backed by the provided counter store and
// detector. A nil detector disables abuse detection.
func NewEngine(counters store.CounterStore, detector *DDoSDetector, opts ...EngineOption) *Engine {
	e := &Engine{
		configs:  make(map[string]*Config),
		store:    counters,
		detector: detector,
		breaker:  newStoreBreaker(BreakerOptions{}),
		logger:   observability.NewStdLogger(nil),
		metrics:  observability.NewInMemoryMetrics(),
		tracer:   observability.NoopTracer{},
		now:      time.Now,
	}
	e.enabled.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	e.algorithms = map[Algorithm]algorithm{
		AlgorithmFixedWindow:   &fixedWindow{store: e.store},
		AlgorithmSlidingWindow: &slidingWindow{store: e.store},
		AlgorithmTokenBucket:   &tokenBucket{store: e.store},
	}
	// Leaky bucket is an alias for the token bucket implementation.
	e.algorithms[AlgorithmLeakyBucket] = e.algorithms[AlgorithmTokenBucket]
	return e
}

// SetEnabled toggles rate limiting globally. While disabled every check
// returns an always-allow decision carrying the identifier "disabled".
func (e *Engine) SetEnabled(enabled bool) {
	if e == nil {
		return
	}
	e.enabled.Store(enabled)
}

// RegisterConfig validates and registers a policy under name. Policies are
// immutable once registered.
func (e *Engine) RegisterConfig(name string, cfg *Config) error {
	if e == nil || cfg == nil || name == "" {
		return fmt.Errorf("%w: name and config are required", ErrInvalidConfig)
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}
	if cfg.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive", ErrInvalidConfig)
	}
	normalized := *cfg
	if normalized.Algorithm == "" {
		normalized.Algorithm = AlgorithmFixedWindow
	}
	if _, ok := e.algorithms[normalized.Algorithm]; !ok {
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, normalized.Algorithm)
	}
	if normalized.Strategy == "" {
		normalized.Strategy = StrategyIP
	}
	if normalized.BurstLimit <= 0 {
		normalized.BurstLimit = normalized.MaxRequests
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.configs[name]; ok {
		return fmt.Errorf("%w: %s", ErrConfigExists, name)
	}
	e.configs[name] = &normalized
	return nil
}

// Configs lists registered policy names.
func (e *Engine) Configs() []string {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.configs))
	for name := range e.configs {
		names = append(names, name)
	}
	return names
}

// CheckRateLimit evaluates the named policy against the request context. An
// unregistered name returns ErrConfigNotFound; storage failures fail open.
func (e *Engine) CheckRateLimit(ctx context.Context, name string, mctx *domain.Context) (*Info, error) {
	if e == nil {
		return nil, errors.New("engine is not initialized")
	}
	start := e.now()
	ctx, span := e.tracer.StartSpan(ctx, "admission.check")
	span.SetAttribute("policy", name)
	defer func() {
		span.End()
		e.metrics.ObserveLatency("check", e.now().Sub(start))
	}()

	if !e.enabled.Load() {
		return &Info{
			Remaining:  1,
			Identifier: "disabled",
		}, nil
	}

	e.mu.RLock()
	cfg := e.configs[name]
	e.mu.RUnlock()
	if cfg == nil {
		err := fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		span.RecordError(err)
		return nil, err
	}

	identifier := ResolveIdentifier(cfg, mctx)
	span.SetAttribute("identifier", identifier)
	now := e.now()

	if matchList(cfg.Whitelist, identifier) {
		e.metrics.IncDecision("whitelisted", string(cfg.Algorithm), name)
		return &Info{
			Limit:      cfg.MaxRequests,
			Remaining:  cfg.MaxRequests,
			ResetTime:  now.Add(cfg.Window),
			Algorithm:  cfg.Algorithm,
			Strategy:   cfg.Strategy,
			Identifier: identifier,
		}, nil
	}

	if matchList(cfg.Blacklist, identifier) {
		info := &Info{
			Limit:      cfg.MaxRequests,
			ResetTime:  now.Add(cfg.Window),
			RetryAfter: ceilSeconds(cfg.Window),
			Algorithm:  cfg.Algorithm,
			Strategy:   cfg.Strategy,
			Identifier: identifier,
			Blocked:    true,
			Reason:     ReasonBlacklisted,
		}
		e.metrics.IncDecision("blacklisted", string(cfg.Algorithm), name)
		e.invokeLimitCallback(cfg, mctx, info)
		return info, nil
	}

	if result := e.detector.Check(identifier, mctx, cfg.DDoSProtection); result.Detected {
		info := &Info{
			Limit:        cfg.MaxRequests,
			ResetTime:    now.Add(cfg.Window),
			RetryAfter:   ceilSeconds(cfg.Window),
			Algorithm:    cfg.Algorithm,
			Strategy:     cfg.Strategy,
			Identifier:   identifier,
			Blocked:      true,
			DDoSDetected: true,
			Reason:       ReasonDDoSDetected,
		}
		e.metrics.IncDecision("ddos_detected", string(cfg.Algorithm), name)
		e.metrics.IncDDoSDetected(string(cfg.DDoSProtection))
		e.logger.Info("abuse heuristics fired", map[string]any{
			"policy":     name,
			"identifier": identifier,
			"score":      result.Score,
			"reason":     result.Reason,
		})
		e.invokeLimitCallback(cfg, mctx, info)
		return info, nil
	}

	info, err := e.dispatch(ctx, name, cfg, identifier, now)
	if err != nil {
		// Storage trouble must not take the service down: log, count, and
		// let the request through.
		span.RecordError(err)
		e.metrics.IncStorageError("check")
		e.logger.Error("counter store failed, admitting request", map[string]any{
			"policy":     name,
			"identifier": identifier,
			"error":      err.Error(),
		})
		return &Info{
			Limit:      cfg.MaxRequests,
			Remaining:  cfg.MaxRequests,
			ResetTime:  now.Add(cfg.Window),
			Algorithm:  cfg.Algorithm,
			Strategy:   cfg.Strategy,
			Identifier: identifier,
		}, nil
	}

	info.Strategy = cfg.Strategy
	info.Identifier = identifier
	if info.Blocked {
		e.metrics.IncDecision("blocked", string(cfg.Algorithm), name)
		e.invokeLimitCallback(cfg, mctx, info)
	} else {
		e.metrics.IncDecision("allowed", string(cfg.Algorithm), name)
	}
	return info, nil
}

// ResetRateLimit clears all counters and the abuse pattern for identifier.
func (e *Engine) ResetRateLimit(ctx context.Context, identifier string) error {
	if e == nil || identifier == "" {
		return nil
	}
	e.detector.Reset(identifier)
	if err := e.store.DeletePrefix(ctx, identifier+"\x1f"); err != nil {
		e.metrics.IncStorageError("reset")
		return err
	}
	return nil
}

// Cleanup sweeps expired counters and aged-out abuse patterns.
func (e *Engine) Cleanup(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.detector.Prune()
	if err := e.store.Cleanup(ctx); err != nil {
		e.metrics.IncStorageError("cleanup")
		return err
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, name string, cfg *Config, identifier string, now time.Time) (*Info, error) {
	if !e.breaker.allow(now) {
		return nil, fmt.Errorf("%w: breaker open", store.ErrUnavailable)
	}
	algo := e.algorithms[cfg.Algorithm]
	info, err := algo.apply(ctx, cfg, storeKey(name, identifier), now)
	if err != nil {
		e.breaker.onFailure(e.now())
		return nil, err
	}
	e.breaker.onSuccess()
	return info, nil
}

func (e *Engine) invokeLimitCallback(cfg *Config, mctx *domain.Context, info *Info) {
	if cfg.OnLimitReached == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("onLimitReached callback panicked", map[string]any{
				"identifier": info.Identifier,
				"panic":      fmt.Sprint(r),
			})
		}
	}()
	cfg.OnLimitReached(mctx, info)
}

// storeKey namespaces counters by identifier first so ResetRateLimit can
// clear every policy's counters for one caller with a single prefix delete.
func storeKey(name, identifier string) string {
	return identifier + "\x1f" + name
}
