// Package admission provides the heuristic abuse detector.
package admission

import (
	"strings"
	"sync"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/domain"
)

const (
	patternRetention = 60 * time.Second
	burstWindow      = 5 * time.Second
	uniformTolerance = 100 * time.Millisecond
	maxScore         = 100

	defaultMaxPatterns = 10_000
)

// Detection thresholds per protection level; a lower threshold fires earlier.
var detectionThresholds = map[ProtectionLevel]int{
	ProtectionBasic:      70,
	ProtectionAdvanced:   50,
	ProtectionEnterprise: 30,
}

var botUserAgents = []string{"bot", "crawler", "spider", "scrape", "curl", "wget", "python-requests"}

// DetectionResult reports the abuse heuristics for one request.
type DetectionResult struct {
	Detected bool
	Score    int
	Reason   string
}

// requestPattern is the rolling request history kept per identifier.
type requestPattern struct {
	identifier  string
	timestamps  []time.Time
	firstSeen   time.Time
	lastRequest time.Time
	score       int
}

// DDoSDetector scores request streams per identifier from frequency, timing
// uniformity and header plausibility. It owns its pattern map independently
// of the counter store.
type DDoSDetector struct {
	mu          sync.Mutex
	patterns    map[string]*requestPattern
	lru         *lruKeys
	maxPatterns int
	now         func() time.Time
}

// DetectorOption customizes a DDoSDetector.
type DetectorOption func(*DDoSDetector)

// WithDetectorClock overrides the detector clock.
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *DDoSDetector) {
		if now != nil {
			d.now = now
		}
	}
}

// WithMaxPatterns caps the number of tracked identifiers.
func WithMaxPatterns(max int) DetectorOption {
	return func(d *DDoSDetector) {
		if max > 0 {
			d.maxPatterns = max
		}
	}
}

// NewDDoSDetector constructs a detector.
func NewDDoSDetector(opts ...DetectorOption) *DDoSDetector {
	d := &DDoSDetector{
		patterns:    make(map[string]*requestPattern),
		maxPatterns: defaultMaxPatterns,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lru = newLRUKeys(d.maxPatterns)
	return d
}

// Check records the request for identifier and evaluates the heuristics.
// A missing or "none" protection level is a no-op.
func (d *DDoSDetector) Check(identifier string, mctx *domain.Context, level ProtectionLevel) DetectionResult {
	if d == nil || level == "" || level == ProtectionNone {
		return DetectionResult{}
	}
	threshold, ok := detectionThresholds[level]
	if !ok {
		return DetectionResult{}
	}

	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	pattern := d.patterns[identifier]
	if pattern == nil {
		pattern = &requestPattern{identifier: identifier, firstSeen: now}
		d.patterns[identifier] = pattern
	}
	pattern.timestamps = append(pattern.timestamps, now)
	pattern.lastRequest = now
	prunePattern(pattern, now)

	d.lru.touch(identifier)
	for _, evicted := range d.lru.evictOverflow() {
		delete(d.patterns, evicted)
	}

	score, reason := d.score(pattern, mctx, level, now)
	pattern.score = score

	result := DetectionResult{Score: score}
	if score >= threshold {
		result.Detected = true
		result.Reason = reason
	}
	return result
}

// Reset drops the pattern for an identifier, the operator escape hatch after
// a false positive.
func (d *DDoSDetector) Reset(identifier string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.patterns, identifier)
	d.lru.remove(identifier)
}

// Prune drops identifiers whose entire history has aged out.
func (d *DDoSDetector) Prune() {
	if d == nil {
		return
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for identifier, pattern := range d.patterns {
		prunePattern(pattern, now)
		if len(pattern.timestamps) == 0 {
			delete(d.patterns, identifier)
			d.lru.remove(identifier)
		}
	}
}

// PatternCount reports the number of tracked identifiers.
func (d *DDoSDetector) PatternCount() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.patterns)
}

func (d *DDoSDetector) score(pattern *requestPattern, mctx *domain.Context, level ProtectionLevel, now time.Time) (int, string) {
	score := 0
	reason := ""
	record := func(points int, name string) {
		if points <= 0 {
			return
		}
		score += points
		if reason == "" {
			reason = name
		}
	}

	recent := len(pattern.timestamps)

	// Frequency: one point per ten requests in the last minute, capped at 40.
	frequency := recent / 10
	if frequency > 40 {
		frequency = 40
	}
	record(frequency, "high_frequency")

	// Timing uniformity: evenly spaced requests look scripted. Only
	// meaningful above five requests per minute.
	if recent > 5 {
		record(uniformityPoints(pattern.timestamps), "uniform_timing")
	}

	// Header plausibility.
	record(headerPoints(mctx), "implausible_headers")

	// Burst detection, advanced and enterprise tiers only.
	if level == ProtectionAdvanced || level == ProtectionEnterprise {
		burst := 0
		cutoff := now.Add(-burstWindow)
		for i := len(pattern.timestamps) - 1; i >= 0; i-- {
			if !pattern.timestamps[i].After(cutoff) {
				break
			}
			burst++
		}
		if burst > 20 {
			record(10, "burst")
		}
	}

	if score > maxScore {
		score = maxScore
	}
	return score, reason
}

func uniformityPoints(timestamps []time.Time) int {
	intervals := make([]time.Duration, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, timestamps[i].Sub(timestamps[i-1]))
	}
	if len(intervals) == 0 {
		return 0
	}
	var total time.Duration
	for _, interval := range intervals {
		total += interval
	}
	mean := total / time.Duration(len(intervals))

	uniform := 0
	for _, interval := range intervals {
		delta := interval - mean
		if delta < 0 {
			delta = -delta
		}
		if delta <= uniformTolerance {
			uniform++
		}
	}
	return int(float64(uniform) / float64(len(intervals)) * 30)
}

func headerPoints(mctx *domain.Context) int {
	points := 0
	agent := strings.ToLower(mctx.Header("user-agent"))
	if agent == "" {
		points += 10
	} else {
		for _, marker := range botUserAgents {
			if strings.Contains(agent, marker) {
				points += 10
				break
			}
		}
	}
	for _, header := range []string{"accept", "accept-language", "accept-encoding"} {
		if mctx.Header(header) == "" {
			points += 3
		}
	}
	if points > 20 {
		points = 20
	}
	return points
}

func prunePattern(pattern *requestPattern, now time.Time) {
	cutoff := now.Add(-patternRetention)
	kept := pattern.timestamps[:0]
	for _, ts := range pattern.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	pattern.timestamps = kept
}
