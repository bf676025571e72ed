// Package domain provides pattern matching shared by allow/deny lists and
// middleware path conditions.
package domain

import "strings"

// MatchPattern reports whether value matches pattern. A pattern without '*'
// must match exactly; '*' matches any run of characters, including none.
func MatchPattern(pattern, value string) bool {
	if pattern == "" {
		return value == ""
	}
	if !strings.Contains(pattern, "*") {
		return pattern == value
	}
	if pattern == "*" {
		return true
	}

	parts := strings.Split(pattern, "*")
	if first := parts[0]; first != "" {
		if !strings.HasPrefix(value, first) {
			return false
		}
		value = value[len(first):]
	}
	last := parts[len(parts)-1]
	if last != "" {
		if !strings.HasSuffix(value, last) {
			return false
		}
		value = value[:len(value)-len(last)]
	}
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return true
}

// MatchAny reports whether value matches any of the provided patterns.
func MatchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, value) {
			return true
		}
	}
	return false
}
