// Package admission provides caller identification.
package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
)

// ResolveIdentifier derives the key a policy is applied against. A custom
// KeyGenerator always wins; otherwise the configured strategy decides.
func ResolveIdentifier(cfg *Config, mctx *domain.Context) string {
	if cfg == nil || mctx == nil {
		return "unknown"
	}
	if cfg.KeyGenerator != nil {
		if key := cfg.KeyGenerator(mctx); key != "" {
			return key
		}
	}
	switch cfg.Strategy {
	case StrategyUser:
		if mctx.User != nil && mctx.User.ID != "" {
			return "user:" + mctx.User.ID
		}
		return "ip:" + ClientIP(mctx)
	case StrategyCombined:
		if mctx.User != nil && mctx.User.ID != "" {
			return "user:" + mctx.User.ID + ":ip:" + ClientIP(mctx)
		}
		return "ip:" + ClientIP(mctx)
	case StrategyAPIKey:
		if key := mctx.Header("x-api-key"); key != "" {
			return "key:" + hashAPIKey(key)
		}
		return "ip:" + ClientIP(mctx)
	case StrategyEndpoint:
		return mctx.Request.Method + ":" + mctx.Request.URL + ":" + ClientIP(mctx)
	default:
		return "ip:" + ClientIP(mctx)
	}
}

// ClientIP extracts the caller address: first X-Forwarded-For hop, then
// X-Real-IP, then the transport remote address.
func ClientIP(mctx *domain.Context) string {
	if mctx == nil {
		return "unknown"
	}
	if xff := mctx.Header("x-forwarded-for"); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(mctx.Header("x-real-ip")); realIP != "" {
		return realIP
	}
	remote := strings.TrimSpace(mctx.Request.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}

// matchList checks an identifier against allow/deny patterns. Patterns are
// written against either the full identifier ("user:42:ip:10.0.0.1") or the
// bare value ("10.0.0.*"), so both forms are tried.
func matchList(patterns []string, identifier string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, candidate := range identifierCandidates(identifier) {
		if domain.MatchAny(patterns, candidate) {
			return true
		}
	}
	return false
}

func identifierCandidates(identifier string) []string {
	candidates := []string{identifier}
	if idx := strings.LastIndex(identifier, "ip:"); idx >= 0 {
		if bare := identifier[idx+len("ip:"):]; bare != "" && bare != identifier {
			candidates = append(candidates, bare)
		}
	}
	for _, prefix := range []string{"user:", "key:"} {
		if strings.HasPrefix(identifier, prefix) {
			candidates = append(candidates, identifier[len(prefix):])
		}
	}
	return candidates
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
