package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/admission"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

func TestRateLimit_AllowSetsQuotaHeaders(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, &admission.Config{
		Window:      time.Minute,
		MaxRequests: 5,
	})
	p := newTestPipeline(t, engine, nil)

	mctx := requestContext("10.0.0.1:80")
	if err := p.Execute(context.Background(), mctx); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if mctx.Aborted {
		t.Fatalf("allowed request must not abort")
	}
	resp := mctx.Response
	if resp == nil {
		t.Fatalf("quota headers missing")
	}
	if resp.Headers["x-ratelimit-limit"] != "5" {
		t.Fatalf("unexpected limit header: %q", resp.Headers["x-ratelimit-limit"])
	}
	if resp.Headers["x-ratelimit-remaining"] != "4" {
		t.Fatalf("unexpected remaining header: %q", resp.Headers["x-ratelimit-remaining"])
	}
	if resp.Headers["x-ratelimit-reset"] == "" {
		t.Fatalf("reset header missing")
	}
	if resp.Headers["x-ratelimit-algorithm"] != string(admission.AlgorithmFixedWindow) {
		t.Fatalf("unexpected algorithm header: %q", resp.Headers["x-ratelimit-algorithm"])
	}
}

func TestRateLimit_BlockReturns429(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, &admission.Config{
		Window:      time.Minute,
		MaxRequests: 2,
	})
	var rejected *admission.Info
	p := newTestPipeline(t, engine, func(mctx *domain.Context, info *admission.Info) {
		rejected = info
	})

	var mctx *domain.Context
	for i := 0; i < 3; i++ {
		mctx = requestContext("10.0.0.1:80")
		if err := p.Execute(context.Background(), mctx); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	if !mctx.Aborted {
		t.Fatalf("third request must abort")
	}
	if mctx.Response.StatusCode != 429 {
		t.Fatalf("unexpected status: %d", mctx.Response.StatusCode)
	}
	if mctx.Response.Headers["retry-after"] == "" {
		t.Fatalf("retry-after header missing")
	}
	var body errorBody
	if err := json.Unmarshal(mctx.Response.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Code != CodeRateLimited {
		t.Fatalf("unexpected code: %q", body.Code)
	}
	if body.Timestamp.IsZero() {
		t.Fatalf("timestamp missing")
	}
	if rejected == nil || !rejected.Blocked {
		t.Fatalf("OnRejected should observe the decision: %#v", rejected)
	}
}

func TestRateLimit_BlacklistUsesSecurityCode(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, &admission.Config{
		Window:      time.Minute,
		MaxRequests: 100,
		Blacklist:   []string{"10.0.0.*"},
	})
	p := newTestPipeline(t, engine, nil)

	mctx := requestContext("10.0.0.9:80")
	if err := p.Execute(context.Background(), mctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !mctx.Aborted || mctx.Response.StatusCode != 429 {
		t.Fatalf("blacklisted request must be rejected: %#v", mctx.Response)
	}
	var body errorBody
	if err := json.Unmarshal(mctx.Response.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Code != CodeSecurityViolation {
		t.Fatalf("unexpected code: %q", body.Code)
	}
}

func TestRateLimit_UnknownPolicyPropagates(t *testing.T) {
	t.Parallel()

	engine := admission.NewEngine(store.NewMemoryStore(), nil)
	cfg, err := RateLimit(engine, RateLimitOptions{Policy: "missing"})
	if err != nil {
		t.Fatalf("build middleware: %v", err)
	}
	p := pipeline.New()
	if err := p.Use(cfg); err != nil {
		t.Fatalf("use: %v", err)
	}

	err = p.Execute(context.Background(), requestContext("10.0.0.1:80"))
	if !errors.Is(err, admission.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestValidation_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	if err := p.Use(Validation(MaxBodyValidator(4))); err != nil {
		t.Fatalf("use: %v", err)
	}
	ran := false
	mustUse(t, p, &pipeline.Config{
		Name:     "after",
		Priority: 100,
		Enabled:  true,
		Handler: func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
			ran = true
			return next(ctx)
		},
	})

	mctx := requestContext("10.0.0.1:80")
	mctx.Request.Body = []byte("too large body")
	if err := p.Execute(context.Background(), mctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !mctx.Aborted || mctx.Response.StatusCode != 400 {
		t.Fatalf("oversized body must be rejected: %#v", mctx.Response)
	}
	var body errorBody
	if err := json.Unmarshal(mctx.Response.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Code != CodeValidationFailed {
		t.Fatalf("unexpected code: %q", body.Code)
	}
	if ran {
		t.Fatalf("chain must stop at validation failure")
	}
}

func TestValidation_SanitizedBodyReplacesOriginal(t *testing.T) {
	t.Parallel()

	sanitizer := ValidatorFunc(func(mctx *domain.Context) ([]byte, error) {
		return []byte("clean"), nil
	})
	p := pipeline.New()
	if err := p.Use(Validation(sanitizer)); err != nil {
		t.Fatalf("use: %v", err)
	}
	var seen []byte
	mustUse(t, p, &pipeline.Config{
		Name:     "after",
		Priority: 100,
		Enabled:  true,
		Handler: func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
			seen = mctx.Request.Body
			return next(ctx)
		},
	})

	mctx := requestContext("10.0.0.1:80")
	mctx.Request.Body = []byte("dirty")
	if err := p.Execute(context.Background(), mctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(seen) != "clean" {
		t.Fatalf("downstream should see the sanitized body, got %q", seen)
	}
}

func TestContent_BlocksClassifiedThreat(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	if err := p.Use(Content(ContentOptions{Classifier: KeywordClassifier("DROP TABLE")})); err != nil {
		t.Fatalf("use: %v", err)
	}

	mctx := requestContext("10.0.0.1:80")
	mctx.Request.Body = []byte(`{"q":"drop table users"}`)
	if err := p.Execute(context.Background(), mctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !mctx.Aborted || mctx.Response.StatusCode != 403 {
		t.Fatalf("threat must be rejected: %#v", mctx.Response)
	}
	var body errorBody
	if err := json.Unmarshal(mctx.Response.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Code != CodeContentThreat {
		t.Fatalf("unexpected code: %q", body.Code)
	}

	clean := requestContext("10.0.0.1:80")
	clean.Request.Body = []byte(`{"q":"hello"}`)
	if err := p.Execute(context.Background(), clean); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if clean.Aborted {
		t.Fatalf("clean body must pass")
	}
}

func TestThroughput_CapsGlobalRate(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	if err := p.Use(Throughput(1, 2)); err != nil {
		t.Fatalf("use: %v", err)
	}

	blocked := 0
	for i := 0; i < 5; i++ {
		mctx := requestContext("10.0.0.1:80")
		if err := p.Execute(context.Background(), mctx); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
		if mctx.Aborted {
			blocked++
			if mctx.Response.StatusCode != 429 {
				t.Fatalf("unexpected status: %d", mctx.Response.StatusCode)
			}
			if mctx.Response.Headers["retry-after"] != "1" {
				t.Fatalf("retry-after missing: %#v", mctx.Response.Headers)
			}
		}
	}
	if blocked < 2 {
		t.Fatalf("burst of 2 at 1 rps should block most of 5 rapid requests, blocked %d", blocked)
	}
}

func newTestEngine(t *testing.T, cfg *admission.Config) *admission.Engine {
	t.Helper()
	engine := admission.NewEngine(store.NewMemoryStore(), admission.NewDDoSDetector())
	if err := engine.RegisterConfig("api", cfg); err != nil {
		t.Fatalf("register config: %v", err)
	}
	return engine
}

func newTestPipeline(t *testing.T, engine *admission.Engine, onRejected func(*domain.Context, *admission.Info)) *pipeline.Pipeline {
	t.Helper()
	cfg, err := RateLimit(engine, RateLimitOptions{Policy: "api", OnRejected: onRejected})
	if err != nil {
		t.Fatalf("build middleware: %v", err)
	}
	p := pipeline.New()
	if err := p.Use(cfg); err != nil {
		t.Fatalf("use: %v", err)
	}
	return p
}

func mustUse(t *testing.T, p *pipeline.Pipeline, cfg *pipeline.Config) {
	t.Helper()
	if err := p.Use(cfg); err != nil {
		t.Fatalf("use %q: %v", cfg.Name, err)
	}
}

func requestContext(remoteAddr string) *domain.Context {
	return domain.NewContext(domain.Request{
		ID:         "req-1",
		Method:     "POST",
		URL:        "/api/messages",
		RemoteAddr: remoteAddr,
		Headers: map[string]string{
			"user-agent":      "Mozilla/5.0",
			"accept":          "application/json",
			"accept-language": "en-US",
			"accept-encoding": "gzip",
		},
	})
}
