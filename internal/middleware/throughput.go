package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
)

// Throughput builds a middleware capping process-wide request throughput,
// independent of per-caller policies. Requests over the cap are rejected
// with a 429 immediately rather than queued.
func Throughput(rps float64, burst int) *pipeline.Config {
	if burst <= 0 {
		burst = int(rps)
		if burst <= 0 {
			burst = 1
		}
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	handler := func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
		if !limiter.Allow() {
			resp := mctx.EnsureResponse()
			resp.Headers["retry-after"] = "1"
			reject(mctx, 429, CodeRateLimited, "server is at capacity")
			return nil
		}
		return next(ctx)
	}

	return &pipeline.Config{
		Name:     "throughput",
		Priority: PriorityThroughput,
		Enabled:  true,
		Handler:  handler,
	}
}
