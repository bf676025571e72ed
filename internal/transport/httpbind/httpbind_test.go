package httpbind

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/admission"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/middleware"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

func TestHandler_AdmittedRequestReachesNext(t *testing.T) {
	t.Parallel()

	p := newRateLimitedPipeline(t, 5)
	reached := false
	handler := Handler(p, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("10.0.0.1:1234"))

	if !reached {
		t.Fatalf("admitted request must reach the next handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Header().Get("X-Ratelimit-Limit") != "5" {
		t.Fatalf("quota headers must be forwarded: %#v", rec.Header())
	}
	if rec.Header().Get("X-Ratelimit-Remaining") != "4" {
		t.Fatalf("unexpected remaining: %q", rec.Header().Get("X-Ratelimit-Remaining"))
	}
}

func TestHandler_RejectedRequestAnsweredFromPipeline(t *testing.T) {
	t.Parallel()

	p := newRateLimitedPipeline(t, 1)
	admit := Handler(p, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	admit.ServeHTTP(httptest.NewRecorder(), newRequest("10.0.0.1:1234"))

	handler := Handler(p, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("rejected request must not reach the next handler")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("10.0.0.1:1234"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("retry-after header missing")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if !strings.Contains(rec.Body.String(), middleware.CodeRateLimited) {
		t.Fatalf("body should carry the error code: %s", rec.Body.String())
	}
}

func TestHandler_SanitizedBodyForwarded(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	sanitizer := middleware.ValidatorFunc(func(mctx *domain.Context) ([]byte, error) {
		return []byte("clean"), nil
	})
	if err := p.Use(middleware.Validation(sanitizer)); err != nil {
		t.Fatalf("use: %v", err)
	}

	var seen string
	handler := Handler(p, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = string(body)
	}))

	req := httptest.NewRequest("POST", "/api/messages", strings.NewReader("dirty"))
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "clean" {
		t.Fatalf("next handler should read the sanitized body, got %q", seen)
	}
}

func TestHandler_RequestIDFromHeader(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	var captured string
	if err := p.Use(&pipeline.Config{
		Name:     "capture",
		Priority: 1,
		Enabled:  true,
		Handler: func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
			captured = mctx.Request.ID
			return next(ctx)
		},
	}); err != nil {
		t.Fatalf("use: %v", err)
	}

	handler := Handler(p, Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := newRequest("10.0.0.1:1234")
	req.Header.Set("X-Request-Id", "trace-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "trace-42" {
		t.Fatalf("request id should come from the header, got %q", captured)
	}

	handler.ServeHTTP(httptest.NewRecorder(), newRequest("10.0.0.1:1234"))
	if captured == "" || captured == "trace-42" {
		t.Fatalf("missing header should generate an id, got %q", captured)
	}
}

func TestHandler_BodyCappedAtLimit(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	var size int
	if err := p.Use(&pipeline.Config{
		Name:     "capture",
		Priority: 1,
		Enabled:  true,
		Handler: func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
			size = len(mctx.Request.Body)
			return next(ctx)
		},
	}); err != nil {
		t.Fatalf("use: %v", err)
	}

	handler := Handler(p, Options{MaxBodyBytes: 8}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest("POST", "/api/messages", strings.NewReader(strings.Repeat("x", 64)))
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if size != 8 {
		t.Fatalf("body should be capped at 8 bytes, got %d", size)
	}
}

func TestHandler_ExtractUser(t *testing.T) {
	t.Parallel()

	p := pipeline.New()
	var roles []string
	if err := p.Use(&pipeline.Config{
		Name:     "capture",
		Priority: 1,
		Enabled:  true,
		Handler: func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
			if mctx.User != nil {
				roles = mctx.User.Roles
			}
			return next(ctx)
		},
	}); err != nil {
		t.Fatalf("use: %v", err)
	}

	handler := Handler(p, Options{
		ExtractUser: func(r *http.Request) *domain.User {
			if r.Header.Get("Authorization") == "" {
				return nil
			}
			return &domain.User{ID: "42", Roles: []string{"admin"}}
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := newRequest("10.0.0.1:1234")
	req.Header.Set("Authorization", "Bearer token")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(roles) != 1 || roles[0] != "admin" {
		t.Fatalf("user should be extracted: %v", roles)
	}
}

func newRateLimitedPipeline(t *testing.T, maxRequests int64) *pipeline.Pipeline {
	t.Helper()
	engine := admission.NewEngine(store.NewMemoryStore(), admission.NewDDoSDetector())
	if err := engine.RegisterConfig("api", &admission.Config{
		Window:      time.Minute,
		MaxRequests: maxRequests,
	}); err != nil {
		t.Fatalf("register config: %v", err)
	}
	cfg, err := middleware.RateLimit(engine, middleware.RateLimitOptions{Policy: "api"})
	if err != nil {
		t.Fatalf("build middleware: %v", err)
	}
	p := pipeline.New()
	if err := p.Use(cfg); err != nil {
		t.Fatalf("use: %v", err)
	}
	return p
}

func newRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest("GET", "/api/messages", nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")
	return req
}
