package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
)

func TestDetector_NoneLevelIsNoop(t *testing.T) {
	t.Parallel()

	detector := NewDDoSDetector()
	for i := 0; i < 50; i++ {
		result := detector.Check("ip:10.0.0.1", botContext(), ProtectionNone)
		if result.Detected || result.Score != 0 {
			t.Fatalf("none level must never score: %#v", result)
		}
	}
	if detector.PatternCount() != 0 {
		t.Fatalf("none level must not track patterns")
	}
}

func TestDetector_ScoreMonotonicWithinUniformBurst(t *testing.T) {
	t.Parallel()

	clock := &detectorClock{now: time.Unix(1_700_000_000, 0)}
	detector := NewDDoSDetector(WithDetectorClock(clock.Now))

	previous := 0
	for i := 0; i < 40; i++ {
		result := detector.Check("ip:10.0.0.1", botContext(), ProtectionBasic)
		if result.Score < previous {
			t.Fatalf("score regressed at request %d: %d -> %d", i+1, previous, result.Score)
		}
		if result.Score > 100 {
			t.Fatalf("score exceeds cap: %d", result.Score)
		}
		previous = result.Score
		clock.Advance(50 * time.Millisecond)
	}
	if previous < 30 {
		t.Fatalf("uniform bot burst should score high, got %d", previous)
	}
}

func TestDetector_ThresholdsByLevel(t *testing.T) {
	t.Parallel()

	// A short bot-like uniform burst settles around 50: timing uniformity
	// plus implausible headers, with a small frequency contribution.
	run := func(level ProtectionLevel) DetectionResult {
		clock := &detectorClock{now: time.Unix(1_700_000_000, 0)}
		detector := NewDDoSDetector(WithDetectorClock(clock.Now))
		var result DetectionResult
		for i := 0; i < 10; i++ {
			result = detector.Check("ip:10.0.0.1", botContext(), level)
			clock.Advance(100 * time.Millisecond)
		}
		return result
	}

	if result := run(ProtectionBasic); result.Detected {
		t.Fatalf("basic threshold 70 should not fire at score %d", result.Score)
	}
	if result := run(ProtectionAdvanced); !result.Detected {
		t.Fatalf("advanced threshold 50 should fire, score %d", result.Score)
	}
	if result := run(ProtectionEnterprise); !result.Detected {
		t.Fatalf("enterprise threshold 30 should fire, score %d", result.Score)
	}
}

func TestDetector_HeaderPlausibility(t *testing.T) {
	t.Parallel()

	detector := NewDDoSDetector()

	plausible := domain.NewContext(domain.Request{Headers: map[string]string{
		"user-agent":      "Mozilla/5.0",
		"accept":          "text/html",
		"accept-language": "en-US",
		"accept-encoding": "gzip",
	}})
	result := detector.Check("ip:10.0.0.1", plausible, ProtectionBasic)
	if result.Score != 0 {
		t.Fatalf("plausible browser request should score zero, got %d", result.Score)
	}

	crawler := domain.NewContext(domain.Request{Headers: map[string]string{
		"user-agent":      "googlebot/2.1",
		"accept":          "text/html",
		"accept-language": "en-US",
		"accept-encoding": "gzip",
	}})
	result = detector.Check("ip:10.0.0.2", crawler, ProtectionBasic)
	if result.Score != 10 {
		t.Fatalf("bot user agent should score 10, got %d", result.Score)
	}
}

func TestDetector_BurstComponentOnlyAdvanced(t *testing.T) {
	t.Parallel()

	score := func(level ProtectionLevel) int {
		clock := &detectorClock{now: time.Unix(1_700_000_000, 0)}
		detector := NewDDoSDetector(WithDetectorClock(clock.Now))
		ctx := browserContext()
		var result DetectionResult
		// 25 requests inside five seconds, irregular enough to avoid the
		// uniformity component.
		steps := []time.Duration{10 * time.Millisecond, 400 * time.Millisecond, 30 * time.Millisecond, 150 * time.Millisecond}
		for i := 0; i < 25; i++ {
			result = detector.Check("ip:10.0.0.1", ctx, level)
			clock.Advance(steps[i%len(steps)])
		}
		return result.Score
	}

	basic := score(ProtectionBasic)
	advanced := score(ProtectionAdvanced)
	if advanced != basic+10 {
		t.Fatalf("burst component should add 10 on advanced: basic=%d advanced=%d", basic, advanced)
	}
}

func TestDetector_PruneAndReset(t *testing.T) {
	t.Parallel()

	clock := &detectorClock{now: time.Unix(1_700_000_000, 0)}
	detector := NewDDoSDetector(WithDetectorClock(clock.Now))

	detector.Check("ip:10.0.0.1", browserContext(), ProtectionBasic)
	detector.Check("ip:10.0.0.2", browserContext(), ProtectionBasic)
	if detector.PatternCount() != 2 {
		t.Fatalf("expected two patterns, got %d", detector.PatternCount())
	}

	detector.Reset("ip:10.0.0.1")
	if detector.PatternCount() != 1 {
		t.Fatalf("reset should drop the pattern, got %d", detector.PatternCount())
	}

	clock.Advance(2 * time.Minute)
	detector.Prune()
	if detector.PatternCount() != 0 {
		t.Fatalf("prune should drop aged-out patterns, got %d", detector.PatternCount())
	}
}

func TestDetector_LRUCapsPatternMap(t *testing.T) {
	t.Parallel()

	detector := NewDDoSDetector(WithMaxPatterns(3))
	ids := []string{"ip:1", "ip:2", "ip:3", "ip:4", "ip:5"}
	for _, id := range ids {
		detector.Check(id, browserContext(), ProtectionBasic)
	}
	if detector.PatternCount() != 3 {
		t.Fatalf("pattern map should be capped at 3, got %d", detector.PatternCount())
	}
}

func botContext() *domain.Context {
	return domain.NewContext(domain.Request{Headers: map[string]string{}})
}

func browserContext() *domain.Context {
	return domain.NewContext(domain.Request{Headers: map[string]string{
		"user-agent":      "Mozilla/5.0",
		"accept":          "application/json",
		"accept-language": "en-US",
		"accept-encoding": "gzip",
	}})
}

type detectorClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *detectorClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *detectorClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
