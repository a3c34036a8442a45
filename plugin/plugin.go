// Package plugin defines the plugin system for Arbiter.
// Plugins are notified of lifecycle events (decision made, policy created,
// policy deleted, etc.) and can react with audit logging, metrics or
// notifications.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Evaluation lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeEvaluate is called before a request is evaluated.
// The ec parameter is *arbiter.EvaluationContext (passed as any to avoid an import cycle).
type BeforeEvaluate interface {
	OnBeforeEvaluate(ctx context.Context, ec any) error
}

// AfterEvaluate is called after a decision is made.
// The ec parameter is *arbiter.EvaluationContext; result is *arbiter.EvaluationResult.
type AfterEvaluate interface {
	OnAfterEvaluate(ctx context.Context, ec, result any) error
}

// ──────────────────────────────────────────────────
// Policy lifecycle hooks
// ──────────────────────────────────────────────────

// PolicyCreated is called after a policy is created.
type PolicyCreated interface {
	OnPolicyCreated(ctx context.Context, p *policy.Policy) error
}

// PolicyUpdated is called after a policy is updated.
type PolicyUpdated interface {
	OnPolicyUpdated(ctx context.Context, p *policy.Policy) error
}

// PolicyDeleted is called after a policy is deleted.
type PolicyDeleted interface {
	OnPolicyDeleted(ctx context.Context, polID id.PolicyID) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
