// Package config provides gateway configuration with environment overrides.
package config

import "time"

// Config captures runtime settings for the admission gateway.
type Config struct {
	ListenAddr      string
	StoreBackend    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SweepInterval   time.Duration
	MaxBodyBytes    int64
	TraceSampleRate int
	MaxPatterns     int
	GlobalRPS       float64
	GlobalBurst     int
	RateLimiting    bool

	DefaultPolicy PolicyConfig
}

// PolicyConfig describes the default registered policy.
type PolicyConfig struct {
	Name           string
	Algorithm      string
	Strategy       string
	Window         time.Duration
	MaxRequests    int64
	BurstLimit     int64
	DDoSProtection string
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		StoreBackend:    "memory",
		SweepInterval:   time.Minute,
		MaxBodyBytes:    1 << 20,
		TraceSampleRate: 100,
		MaxPatterns:     10_000,
		GlobalRPS:       500,
		GlobalBurst:     1000,
		RateLimiting:    true,
		DefaultPolicy: PolicyConfig{
			Name:           "api",
			Algorithm:      "sliding_window",
			Strategy:       "ip_based",
			Window:         time.Minute,
			MaxRequests:    120,
			DDoSProtection: "basic",
		},
	}
}

// Load builds a configuration from defaults plus environment overrides.
func Load(environ []string) (Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(&cfg, environ); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
