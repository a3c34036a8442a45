package extension

import (
	"time"

	"github.com/xraph/arbiter"
)

// Config holds the Arbiter extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.arbiter" or "arbiter" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for arbiter routes (default: none, routes
	// live under /v1).
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// CacheTTL enables the in-memory decision cache when positive.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// CacheMaxSize bounds the decision cache (default 10000).
	CacheMaxSize int `json:"cache_max_size" mapstructure:"cache_max_size" yaml:"cache_max_size"`

	// SkipInvalidPolicies drops stored policies that fail validation
	// instead of failing evaluation.
	SkipInvalidPolicies bool `json:"skip_invalid_policies" mapstructure:"skip_invalid_policies" yaml:"skip_invalid_policies"`

	// Audit records every decision to the store's decision log.
	Audit bool `json:"audit" mapstructure:"audit" yaml:"audit"`

	// AuditDenyOnly restricts the decision log to deny decisions.
	AuditDenyOnly bool `json:"audit_deny_only" mapstructure:"audit_deny_only" yaml:"audit_deny_only"`

	// PolicyFile is a YAML or JSON policy file loaded on start. Policies
	// whose name already exists in the seed tenant are left untouched.
	PolicyFile string `json:"policy_file" mapstructure:"policy_file" yaml:"policy_file"`

	// SeedAppID and SeedTenantID scope the policies loaded from PolicyFile.
	SeedAppID    string `json:"seed_app_id" mapstructure:"seed_app_id" yaml:"seed_app_id"`
	SeedTenantID string `json:"seed_tenant_id" mapstructure:"seed_tenant_id" yaml:"seed_tenant_id"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheMaxSize: 10000,
	}
}

func (c Config) engineConfig() arbiter.Config {
	cfg := arbiter.DefaultConfig()
	cfg.CacheTTL = c.CacheTTL
	cfg.SkipInvalidPolicies = c.SkipInvalidPolicies
	return cfg
}
