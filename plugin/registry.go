package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeEvaluateEntry struct {
	name string
	hook BeforeEvaluate
}
type afterEvaluateEntry struct {
	name string
	hook AfterEvaluate
}
type policyCreatedEntry struct {
	name string
	hook PolicyCreated
}
type policyUpdatedEntry struct {
	name string
	hook PolicyUpdated
}
type policyDeletedEntry struct {
	name string
	hook PolicyDeleted
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeEvaluate []beforeEvaluateEntry
	afterEvaluate  []afterEvaluateEntry
	policyCreated  []policyCreatedEntry
	policyUpdated  []policyUpdatedEntry
	policyDeleted  []policyDeletedEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeEvaluate); ok {
		r.beforeEvaluate = append(r.beforeEvaluate, beforeEvaluateEntry{name, h})
	}
	if h, ok := p.(AfterEvaluate); ok {
		r.afterEvaluate = append(r.afterEvaluate, afterEvaluateEntry{name, h})
	}
	if h, ok := p.(PolicyCreated); ok {
		r.policyCreated = append(r.policyCreated, policyCreatedEntry{name, h})
	}
	if h, ok := p.(PolicyUpdated); ok {
		r.policyUpdated = append(r.policyUpdated, policyUpdatedEntry{name, h})
	}
	if h, ok := p.(PolicyDeleted); ok {
		r.policyDeleted = append(r.policyDeleted, policyDeletedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Evaluation event emitters
// ──────────────────────────────────────────────────

// EmitBeforeEvaluate notifies all plugins that implement BeforeEvaluate.
func (r *Registry) EmitBeforeEvaluate(ctx context.Context, ec any) {
	for _, e := range r.beforeEvaluate {
		if err := e.hook.OnBeforeEvaluate(ctx, ec); err != nil {
			r.logHookError("OnBeforeEvaluate", e.name, err)
		}
	}
}

// EmitAfterEvaluate notifies all plugins that implement AfterEvaluate.
func (r *Registry) EmitAfterEvaluate(ctx context.Context, ec, result any) {
	for _, e := range r.afterEvaluate {
		if err := e.hook.OnAfterEvaluate(ctx, ec, result); err != nil {
			r.logHookError("OnAfterEvaluate", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Policy event emitters
// ──────────────────────────────────────────────────

// EmitPolicyCreated notifies all plugins that implement PolicyCreated.
func (r *Registry) EmitPolicyCreated(ctx context.Context, p *policy.Policy) {
	for _, e := range r.policyCreated {
		if err := e.hook.OnPolicyCreated(ctx, p); err != nil {
			r.logHookError("OnPolicyCreated", e.name, err)
		}
	}
}

// EmitPolicyUpdated notifies all plugins that implement PolicyUpdated.
func (r *Registry) EmitPolicyUpdated(ctx context.Context, p *policy.Policy) {
	for _, e := range r.policyUpdated {
		if err := e.hook.OnPolicyUpdated(ctx, p); err != nil {
			r.logHookError("OnPolicyUpdated", e.name, err)
		}
	}
}

// EmitPolicyDeleted notifies all plugins that implement PolicyDeleted.
func (r *Registry) EmitPolicyDeleted(ctx context.Context, polID id.PolicyID) {
	for _, e := range r.policyDeleted {
		if err := e.hook.OnPolicyDeleted(ctx, polID); err != nil {
			r.logHookError("OnPolicyDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated to the caller.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
