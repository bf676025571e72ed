// Package admission defines the rate limit policy and decision models.
package admission

import (
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
)

// Algorithm selects the counting strategy for a policy.
type Algorithm string

const (
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmLeakyBucket   Algorithm = "leaky_bucket"
)

// Strategy selects how the caller identifier is derived.
type Strategy string

const (
	StrategyIP       Strategy = "ip_based"
	StrategyUser     Strategy = "user_based"
	StrategyCombined Strategy = "combined"
	StrategyAPIKey   Strategy = "api_key_based"
	StrategyEndpoint Strategy = "endpoint_based"
)

// ProtectionLevel tunes how aggressively the abuse detector fires.
type ProtectionLevel string

const (
	ProtectionNone       ProtectionLevel = "none"
	ProtectionBasic      ProtectionLevel = "basic"
	ProtectionAdvanced   ProtectionLevel = "advanced"
	ProtectionEnterprise ProtectionLevel = "enterprise"
)

// KeyGenerator derives a custom identifier from the request context.
type KeyGenerator func(mctx *domain.Context) string

// LimitReachedFunc is invoked after a blocked decision. It must not panic;
// panics are recovered and logged without altering the decision.
type LimitReachedFunc func(mctx *domain.Context, info *Info)

// Config is an immutable rate limit policy, registered once per name.
type Config struct {
	Algorithm      Algorithm
	Strategy       Strategy
	Window         time.Duration
	MaxRequests    int64
	BurstLimit     int64
	RefillRate     float64
	Whitelist      []string
	Blacklist      []string
	DDoSProtection ProtectionLevel
	KeyGenerator   KeyGenerator
	OnLimitReached LimitReachedFunc

	// Reserved: charging currently happens at admission time regardless of
	// downstream outcome. These knobs are carried for config compatibility
	// until the deferred-charging policy is settled.
	SkipSuccessfulRequests bool
	SkipFailedRequests     bool
}

// Block reasons carried on Info.Reason.
const (
	ReasonBlacklisted  = "blacklisted"
	ReasonDDoSDetected = "ddos_detected"
	ReasonRateLimited  = "rate_limited"
)

// Info is the decision returned for every check. It is the sole contract
// between the engine and its callers.
type Info struct {
	Limit        int64
	Remaining    int64
	ResetTime    time.Time
	RetryAfter   time.Duration
	Algorithm    Algorithm
	Strategy     Strategy
	Identifier   string
	Blocked      bool
	DDoSDetected bool
	Reason       string
}
