// Command gateway starts the admission gateway: an HTTP front door running
// every request through the middleware pipeline before the protected API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/admission"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/admission/config"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/middleware"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store/redisstore"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/transport/httpbind"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Missing .env files are fine; the environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Environ())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	applyFlags(&cfg, os.Args[1:], os.Stderr)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := observability.NewZapLogger(zapLogger)
	metrics := observability.NewInMemoryMetrics()
	tracer := observability.NewLogTracer(logger, observability.NewHashSampler(cfg.TraceSampleRate))

	counters, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("failed to build counter store: %v", err)
	}
	defer closeStore()

	detector := admission.NewDDoSDetector(admission.WithMaxPatterns(cfg.MaxPatterns))
	engine := admission.NewEngine(counters, detector,
		admission.WithLogger(logger),
		admission.WithMetrics(metrics),
		admission.WithTracer(tracer),
	)
	engine.SetEnabled(cfg.RateLimiting)
	if err := registerDefaultPolicy(engine, cfg.DefaultPolicy); err != nil {
		log.Fatalf("failed to register policy: %v", err)
	}

	p, err := buildPipeline(engine, cfg, logger, metrics, tracer)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics.Snapshot())
	})
	router.Handle("/api/*", httpbind.Handler(p, httpbind.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})))

	sweep := store.NewSweepLoop(engine, cfg.SweepInterval, func(err error) {
		logger.Error("cleanup sweep failed", map[string]any{"error": err.Error()})
	})
	go sweep.Run(ctx)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", map[string]any{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Fatalf("server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("failed to shutdown server: %v", err)
	}
}

func buildStore(cfg config.Config) (store.CounterStore, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "redis":
		s, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, errors.New("unknown store backend: " + cfg.StoreBackend)
	}
}

func registerDefaultPolicy(engine *admission.Engine, policy config.PolicyConfig) error {
	return engine.RegisterConfig(policy.Name, &admission.Config{
		Algorithm:      admission.Algorithm(policy.Algorithm),
		Strategy:       admission.Strategy(policy.Strategy),
		Window:         policy.Window,
		MaxRequests:    policy.MaxRequests,
		BurstLimit:     policy.BurstLimit,
		DDoSProtection: admission.ProtectionLevel(policy.DDoSProtection),
	})
}

func buildPipeline(engine *admission.Engine, cfg config.Config, logger observability.Logger, metrics observability.Metrics, tracer observability.Tracer) (*pipeline.Pipeline, error) {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(tracer),
	)
	if cfg.GlobalRPS > 0 {
		if err := p.Use(middleware.Throughput(cfg.GlobalRPS, cfg.GlobalBurst)); err != nil {
			return nil, err
		}
	}
	if err := p.Use(middleware.Validation(middleware.MaxBodyValidator(int(cfg.MaxBodyBytes)))); err != nil {
		return nil, err
	}
	// Allow-all classifier; deployments plug in their own.
	if err := p.Use(middleware.Content(middleware.ContentOptions{
		Classifier: middleware.KeywordClassifier(),
		Logger:     logger,
	})); err != nil {
		return nil, err
	}
	rl, err := middleware.RateLimit(engine, middleware.RateLimitOptions{
		Policy: cfg.DefaultPolicy.Name,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Use(rl); err != nil {
		return nil, err
	}
	return p, nil
}
