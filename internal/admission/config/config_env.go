// Package config provides environment config overrides.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	values := envMap(environ)
	if value, ok := values["ADMISSION_LISTEN_ADDR"]; ok {
		cfg.ListenAddr = value
	}
	if value, ok := values["ADMISSION_STORE"]; ok {
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(value))
	}
	if value, ok := values["ADMISSION_REDIS_ADDR"]; ok {
		cfg.RedisAddr = value
	}
	if value, ok := values["ADMISSION_REDIS_PASSWORD"]; ok {
		cfg.RedisPassword = value
	}
	if value, ok := values["ADMISSION_REDIS_DB"]; ok {
		parsed, err := parseIntEnv("ADMISSION_REDIS_DB", value)
		if err != nil {
			return err
		}
		cfg.RedisDB = int(parsed)
	}
	if value, ok := values["ADMISSION_SWEEP_INTERVAL_MS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_SWEEP_INTERVAL_MS", value)
		if err != nil {
			return err
		}
		cfg.SweepInterval = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["ADMISSION_MAX_BODY_BYTES"]; ok {
		parsed, err := parseIntEnv("ADMISSION_MAX_BODY_BYTES", value)
		if err != nil {
			return err
		}
		cfg.MaxBodyBytes = parsed
	}
	if value, ok := values["ADMISSION_TRACE_SAMPLE_RATE"]; ok {
		parsed, err := parseIntEnv("ADMISSION_TRACE_SAMPLE_RATE", value)
		if err != nil {
			return err
		}
		cfg.TraceSampleRate = int(parsed)
	}
	if value, ok := values["ADMISSION_MAX_PATTERNS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_MAX_PATTERNS", value)
		if err != nil {
			return err
		}
		cfg.MaxPatterns = int(parsed)
	}
	if value, ok := values["ADMISSION_GLOBAL_RPS"]; ok {
		parsed, err := parseFloatEnv("ADMISSION_GLOBAL_RPS", value)
		if err != nil {
			return err
		}
		cfg.GlobalRPS = parsed
	}
	if value, ok := values["ADMISSION_GLOBAL_BURST"]; ok {
		parsed, err := parseIntEnv("ADMISSION_GLOBAL_BURST", value)
		if err != nil {
			return err
		}
		cfg.GlobalBurst = int(parsed)
	}
	if value, ok := values["ADMISSION_RATE_LIMITING"]; ok {
		parsed, err := parseBoolEnv("ADMISSION_RATE_LIMITING", value)
		if err != nil {
			return err
		}
		cfg.RateLimiting = parsed
	}
	if value, ok := values["ADMISSION_POLICY_NAME"]; ok {
		cfg.DefaultPolicy.Name = value
	}
	if value, ok := values["ADMISSION_POLICY_ALGORITHM"]; ok {
		cfg.DefaultPolicy.Algorithm = value
	}
	if value, ok := values["ADMISSION_POLICY_STRATEGY"]; ok {
		cfg.DefaultPolicy.Strategy = value
	}
	if value, ok := values["ADMISSION_POLICY_WINDOW_MS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_POLICY_WINDOW_MS", value)
		if err != nil {
			return err
		}
		cfg.DefaultPolicy.Window = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["ADMISSION_POLICY_MAX_REQUESTS"]; ok {
		parsed, err := parseIntEnv("ADMISSION_POLICY_MAX_REQUESTS", value)
		if err != nil {
			return err
		}
		cfg.DefaultPolicy.MaxRequests = parsed
	}
	if value, ok := values["ADMISSION_POLICY_BURST_LIMIT"]; ok {
		parsed, err := parseIntEnv("ADMISSION_POLICY_BURST_LIMIT", value)
		if err != nil {
			return err
		}
		cfg.DefaultPolicy.BurstLimit = parsed
	}
	if value, ok := values["ADMISSION_POLICY_DDOS_PROTECTION"]; ok {
		cfg.DefaultPolicy.DDoSProtection = value
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseFloatEnv(name, value string) (float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}
