package pipeline

import (
	"regexp"
	"strings"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
)

// Conditions gate a middleware to a subset of requests. Empty fields match
// everything; a nil Conditions matches everything.
type Conditions struct {
	// PathPattern is a glob matched against the request URL.
	PathPattern string
	// PathRegexp, when set, takes precedence over PathPattern.
	PathRegexp *regexp.Regexp
	// Methods restricts to the listed HTTP methods.
	Methods []string
	// Roles restricts to callers holding at least one listed role.
	Roles []string
}

// Match reports whether the context satisfies every condition.
func (c *Conditions) Match(mctx *domain.Context) bool {
	if c == nil {
		return true
	}
	if mctx == nil {
		return false
	}
	if c.PathRegexp != nil {
		if !c.PathRegexp.MatchString(mctx.Request.URL) {
			return false
		}
	} else if c.PathPattern != "" {
		if !domain.MatchPattern(c.PathPattern, mctx.Request.URL) {
			return false
		}
	}
	if len(c.Methods) > 0 && !containsFold(c.Methods, mctx.Request.Method) {
		return false
	}
	if len(c.Roles) > 0 {
		if mctx.User == nil {
			return false
		}
		matched := false
		for _, role := range mctx.User.Roles {
			if containsFold(c.Roles, role) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}
