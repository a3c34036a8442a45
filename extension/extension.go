// Package extension provides a Forge extension entry point for Arbiter.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"
	"go.uber.org/zap"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/api"
	"github.com/xraph/arbiter/audit"
	"github.com/xraph/arbiter/cache"
	"github.com/xraph/arbiter/plugin"
	"github.com/xraph/arbiter/policyfile"
	"github.com/xraph/arbiter/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "arbiter"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Attribute-based access control policy engine (ABAC)"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Arbiter as a Forge extension.
type Extension struct {
	config      Config
	eng         *arbiter.Engine
	apiHandler  *api.API
	store       store.Store
	logger      *slog.Logger
	auditLogger *zap.Logger
	engineOpts  []arbiter.Option
	plugins     []plugin.Plugin
}

// New creates an Arbiter Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Arbiter engine.
func (e *Extension) Engine() *arbiter.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if e.store == nil {
		if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
			e.store = s
		}
	}
	if err := e.build(); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*arbiter.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("arbiter: register engine in container: %w", err)
	}

	e.apiHandler = api.New(e.eng, fapp.Router())
	if !e.config.DisableRoutes {
		router := fapp.Router()
		if e.config.BasePath != "" {
			router = router.Group(e.config.BasePath)
		}
		if err := e.apiHandler.RegisterRoutes(router); err != nil {
			return fmt.Errorf("arbiter: register routes: %w", err)
		}
	}
	return nil
}

// build assembles the engine from the configured store, cache, audit
// recorder and plugins.
func (e *Extension) build() error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]arbiter.Option, 0, len(e.engineOpts)+len(e.plugins)+5)
	opts = append(opts,
		arbiter.WithLogger(logger),
		arbiter.WithConfig(e.config.engineConfig()),
	)
	if e.store != nil {
		opts = append(opts, arbiter.WithStore(e.store))
	}
	if e.config.CacheTTL > 0 {
		opts = append(opts, arbiter.WithCache(cache.NewMemory(
			cache.WithTTL(e.config.CacheTTL),
			cache.WithMaxSize(e.config.CacheMaxSize),
		)))
	}
	if e.config.Audit && e.store != nil {
		auditOpts := []audit.Option{}
		if e.auditLogger != nil {
			auditOpts = append(auditOpts, audit.WithLogger(e.auditLogger))
		}
		if e.config.AuditDenyOnly {
			auditOpts = append(auditOpts, audit.WithDenyOnly())
		}
		opts = append(opts, arbiter.WithPlugin(audit.New(e.store, auditOpts...)))
	}

	// User-provided options may override the store or config.
	opts = append(opts, e.engineOpts...)
	for _, x := range e.plugins {
		opts = append(opts, arbiter.WithPlugin(x))
	}

	eng, err := arbiter.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("arbiter: create engine: %w", err)
	}
	e.eng = eng
	return nil
}

// Start runs migrations if enabled, seeds the policy file and starts the
// engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("arbiter: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("arbiter: migration failed: %w", err)
		}
	}
	if e.config.PolicyFile != "" {
		if _, err := e.seed(ctx); err != nil {
			return err
		}
	}
	return e.eng.Start(ctx)
}

// seed creates every policy from the policy file that the seed tenant
// does not already have, returning the number created.
func (e *Extension) seed(ctx context.Context) (int, error) {
	policies, err := policyfile.Load(e.config.PolicyFile)
	if err != nil {
		return 0, fmt.Errorf("arbiter: load policy file: %w", err)
	}
	ctx = arbiter.WithTenant(ctx, e.config.SeedAppID, e.config.SeedTenantID)

	created := 0
	for _, p := range policies {
		err := e.eng.CreatePolicy(ctx, p)
		switch {
		case errors.Is(err, arbiter.ErrDuplicatePolicy):
			continue
		case err != nil:
			return created, fmt.Errorf("arbiter: seed policy %q: %w", p.Name, err)
		}
		created++
	}
	return created, nil
}

// Stop gracefully shuts down the arbiter engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("arbiter: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all arbiter API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
