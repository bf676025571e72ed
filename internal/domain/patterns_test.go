package domain

import "testing"

func TestMatchPattern_Exact(t *testing.T) {
	t.Parallel()

	if !MatchPattern("10.0.0.5", "10.0.0.5") {
		t.Fatalf("expected exact match")
	}
	if MatchPattern("10.0.0.5", "10.0.0.6") {
		t.Fatalf("unexpected match")
	}
	if MatchPattern("", "value") {
		t.Fatalf("empty pattern must not match non-empty value")
	}
}

func TestMatchPattern_Glob(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"*", "anything", true},
		{"10.0.0.*", "10.0.0.5", true},
		{"10.0.0.*", "10.0.1.5", false},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "example.org", false},
		{"user:*:ip:10.*", "user:42:ip:10.0.0.1", true},
		{"user:*:ip:10.*", "user:42:ip:192.168.0.1", false},
		{"/api/*/messages", "/api/v1/messages", true},
		{"/api/*/messages", "/api/v1/threads", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.pattern, tc.value); got != tc.want {
			t.Fatalf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	t.Parallel()

	patterns := []string{"127.0.0.1", "10.0.0.*"}
	if !MatchAny(patterns, "10.0.0.9") {
		t.Fatalf("expected glob entry to match")
	}
	if MatchAny(patterns, "192.168.1.1") {
		t.Fatalf("unexpected match")
	}
	if MatchAny(nil, "anything") {
		t.Fatalf("empty list must not match")
	}
}

func TestContext_Header(t *testing.T) {
	t.Parallel()

	ctx := NewContext(Request{Headers: map[string]string{"user-agent": "test", "X-Api-Key": "secret"}})
	if got := ctx.Header("User-Agent"); got != "test" {
		t.Fatalf("unexpected header: %q", got)
	}
	if got := ctx.Header("x-api-key"); got != "secret" {
		t.Fatalf("unexpected header: %q", got)
	}
	if got := ctx.Header("missing"); got != "" {
		t.Fatalf("expected empty header, got %q", got)
	}
}
