package extension

import (
	"log/slog"

	"go.uber.org/zap"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/plugin"
	"github.com/xraph/arbiter/store"
)

// ExtOption configures the Arbiter Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...arbiter.Option) ExtOption {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithAuditLogger sets the zap logger used by the decision audit plugin.
func WithAuditLogger(l *zap.Logger) ExtOption {
	return func(e *Extension) {
		e.auditLogger = l
	}
}

// WithPolicyFile seeds policies from a file on start.
func WithPolicyFile(path, appID, tenantID string) ExtOption {
	return func(e *Extension) {
		e.config.PolicyFile = path
		e.config.SeedAppID = appID
		e.config.SeedTenantID = tenantID
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
