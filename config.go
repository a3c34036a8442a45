package arbiter

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the Arbiter engine.
type Config struct {
	// CacheTTL is the time-to-live for cached decisions. Zero disables
	// the engine cache even when one is configured.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" env:"CACHE_TTL"`

	// SkipInvalidPolicies drops stored policies that fail validation
	// (logging a warning) instead of failing the evaluation.
	// Defaults to false, which fails closed.
	SkipInvalidPolicies bool `json:"skip_invalid_policies,omitempty" env:"SKIP_INVALID_POLICIES"`

	// EnableTracing records an OpenTelemetry span per evaluation.
	// Defaults to true.
	EnableTracing *bool `json:"enable_tracing,omitempty" env:"ENABLE_TRACING"`

	// EnableCache consults the decision cache when one is configured.
	// Defaults to true.
	EnableCache *bool `json:"enable_cache,omitempty" env:"ENABLE_CACHE"`

	// VolatileEnvironmentKeys lists environment attributes that change on
	// every request. They are left out of the cache key while no active
	// policy has an environment rule on them; while one does, decisions
	// carrying them are not cached. Custom environment matchers that read
	// these keys without a rule must disable the cache. Defaults to
	// ["time"].
	VolatileEnvironmentKeys []string `json:"volatile_environment_keys,omitempty" env:"VOLATILE_ENVIRONMENT_KEYS" envSeparator:","`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		CacheTTL:                time.Minute,
		EnableTracing:           &t,
		EnableCache:             &t,
		VolatileEnvironmentKeys: []string{"time"},
	}
}

// ConfigFromEnv overlays ARBITER_* environment variables on
// DefaultConfig, e.g. ARBITER_CACHE_TTL=30s.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ARBITER_"}); err != nil {
		return Config{}, fmt.Errorf("arbiter: parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) tracingEnabled() bool { return c.EnableTracing == nil || *c.EnableTracing }
func (c Config) volatileKeys() []string {
	if c.VolatileEnvironmentKeys == nil {
		return []string{"time"}
	}
	return c.VolatileEnvironmentKeys
}

func (c Config) cacheEnabled() bool {
	return (c.EnableCache == nil || *c.EnableCache) && c.CacheTTL > 0
}
