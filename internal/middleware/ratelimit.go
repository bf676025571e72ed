package middleware

import (
	"context"
	"errors"
	"strconv"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/admission"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/observability"
	"github.com/Cardow-Co/conciergus.ai-sub001/internal/pipeline"
)

// RateLimitOptions configure the rate limit middleware.
type RateLimitOptions struct {
	// Policy is the engine policy name to evaluate. Required.
	Policy string
	// Logger receives fail-open notices. Defaults to a silent logger.
	Logger observability.Logger
	// OnRejected, when set, observes every rejected request after the
	// response has been populated.
	OnRejected func(mctx *domain.Context, info *admission.Info)
}

// RateLimit builds a pipeline middleware that enforces the named policy via
// the admission engine. Allowed requests continue down the chain carrying
// quota headers; rejected requests abort with a 429 and a JSON body.
//
// A missing policy is a programming error and the resulting
// ErrConfigNotFound propagates to the pipeline caller. Any other engine
// error fails open: the request proceeds without quota headers.
func RateLimit(engine *admission.Engine, opts RateLimitOptions) (*pipeline.Config, error) {
	if engine == nil {
		return nil, errors.New("admission engine is required")
	}
	if opts.Policy == "" {
		return nil, errors.New("policy name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewStdLogger(nil)
	}

	handler := func(ctx context.Context, mctx *domain.Context, next pipeline.Next) error {
		info, err := engine.CheckRateLimit(ctx, opts.Policy, mctx)
		if err != nil {
			if errors.Is(err, admission.ErrConfigNotFound) {
				return err
			}
			logger.Error("rate limit check failed, admitting request", map[string]any{
				"policy":     opts.Policy,
				"request_id": mctx.Request.ID,
				"error":      err.Error(),
			})
			return next(ctx)
		}

		resp := mctx.EnsureResponse()
		resp.Headers["x-ratelimit-limit"] = strconv.FormatInt(info.Limit, 10)
		resp.Headers["x-ratelimit-remaining"] = strconv.FormatInt(info.Remaining, 10)
		if !info.ResetTime.IsZero() {
			resp.Headers["x-ratelimit-reset"] = strconv.FormatInt(info.ResetTime.Unix(), 10)
		}
		if info.Algorithm != "" {
			resp.Headers["x-ratelimit-algorithm"] = string(info.Algorithm)
		}
		if info.Strategy != "" {
			resp.Headers["x-ratelimit-strategy"] = string(info.Strategy)
		}

		if !info.Blocked {
			return next(ctx)
		}

		if info.RetryAfter > 0 {
			resp.Headers["retry-after"] = strconv.Itoa(int(info.RetryAfter.Seconds()))
		}
		code := CodeRateLimited
		message := "rate limit exceeded"
		switch info.Reason {
		case admission.ReasonBlacklisted:
			code = CodeSecurityViolation
			message = "request denied"
		case admission.ReasonDDoSDetected:
			code = CodeSecurityViolation
			message = "request denied"
		}
		if info.DDoSDetected {
			resp.Headers["x-ddos-protection"] = "active"
		}
		reject(mctx, 429, code, message)
		if opts.OnRejected != nil {
			opts.OnRejected(mctx, info)
		}
		return nil
	}

	return &pipeline.Config{
		Name:     "rate-limit:" + opts.Policy,
		Priority: PriorityRateLimit,
		Enabled:  true,
		Handler:  handler,
	}, nil
}
