package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/plugin"
	"github.com/xraph/arbiter/policy"
	"github.com/xraph/arbiter/store"
)

// tracerName is the instrumentation scope for engine spans.
const tracerName = "github.com/xraph/arbiter"

// Engine is the in-process authorization layer. It loads a tenant's
// policies from the store, hands them to the evaluator, and wraps the
// decision with caching, plugin hooks and tracing.
type Engine struct {
	store     store.Store
	evaluator Evaluator
	cache     Cache
	plugins   *plugin.Registry
	logger    *slog.Logger
	config    Config
	tracer    trace.Tracer
	volatile  *volatileIndex
}

// NewEngine creates a new Arbiter engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		evaluator: NewEvaluator(),
		logger:    slog.Default(),
		config:    DefaultConfig(),
		volatile:  newVolatileIndex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrStoreRequired
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Evaluator returns the policy evaluator.
func (e *Engine) Evaluator() Evaluator { return e.evaluator }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("arbiter: ping store: %w", err)
	}
	return nil
}

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Decisions
// ──────────────────────────────────────────────────

// Evaluate decides ec against the active policies of the tenant in ctx.
// A deny is a result, not an error; errors come only from the store,
// from an invalid context, or from invalid stored policies.
func (e *Engine) Evaluate(ctx context.Context, ec *EvaluationContext) (*EvaluationResult, error) {
	if err := checkContext(ec); err != nil {
		return nil, err
	}
	start := time.Now()
	scope := scopeFromContext(ctx)

	ctx, span := e.startSpan(ctx, "arbiter.Evaluate", scope, ec)
	defer span.End()

	// 1. Cache hit?
	caching := e.cache != nil && e.config.cacheEnabled()
	gen := e.volatile.generation(scope.tenantID)
	if caching {
		if key, ok := e.cacheContext(scope.tenantID, ec); ok {
			if cached, ok := e.cache.Get(ctx, scope.tenantID, key); ok {
				cached.EvalTimeNs = time.Since(start).Nanoseconds()
				endSpan(span, cached, true, nil)
				return cached, nil
			}
		}
	}

	// 2. Extension hook: before evaluate.
	if e.plugins != nil {
		e.plugins.EmitBeforeEvaluate(ctx, ec)
	}

	// 3. Load and decide.
	policies, err := e.loadPolicies(ctx, scope)
	if err != nil {
		endSpan(span, nil, false, err)
		return nil, err
	}
	e.volatile.record(scope.tenantID, gen, e.config.volatileKeys(), policies)
	result := e.evaluator.EvaluatePolicies(policies, ec)
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	// 4. Cache the result, unless a policy write raced with the load.
	if caching && e.volatile.current(scope.tenantID, gen) {
		if key, ok := e.cacheContext(scope.tenantID, ec); ok {
			e.cache.Set(ctx, scope.tenantID, key, result)
		}
	}

	// 5. Extension hook: after evaluate.
	if e.plugins != nil {
		e.plugins.EmitAfterEvaluate(ctx, ec, result)
	}

	e.logger.Debug("arbiter decision",
		slog.String("tenant_id", scope.tenantID),
		slog.String("subject", string(ec.Subject.Kind)+":"+ec.Subject.ID),
		slog.String("action", ec.Action),
		slog.String("resource", ec.Resource.Type+":"+ec.Resource.ID),
		slog.String("decision", string(result.Decision)),
		slog.String("reason", result.Reason),
	)
	endSpan(span, result, false, nil)
	return result, nil
}

// Enforce returns an error wrapping ErrAccessDenied when the decision is deny.
func (e *Engine) Enforce(ctx context.Context, ec *EvaluationContext) error {
	result, err := e.Evaluate(ctx, ec)
	if err != nil {
		return fmt.Errorf("arbiter evaluate: %w", err)
	}
	if !result.Allowed() {
		return fmt.Errorf("%w: %s", ErrAccessDenied, result.Reason)
	}
	return nil
}

// WouldDeny reports whether an active deny policy of the tenant matches ec.
func (e *Engine) WouldDeny(ctx context.Context, ec *EvaluationContext) (bool, error) {
	if err := checkContext(ec); err != nil {
		return false, err
	}
	scope := scopeFromContext(ctx)
	ctx, span := e.startSpan(ctx, "arbiter.WouldDeny", scope, ec)
	defer span.End()

	policies, err := e.loadPolicies(ctx, scope)
	if err != nil {
		endSpan(span, nil, false, err)
		return false, err
	}
	return e.evaluator.WouldDeny(policies, ec), nil
}

// Explanation describes how a decision was reached.
type Explanation struct {
	// Result is the decision, computed without the cache.
	Result *EvaluationResult `json:"result"`

	// Matches lists every active policy matching the context, in store order.
	Matches []MatchResult `json:"matches"`

	// Trace holds one entry per active policy with its mismatch reason.
	Trace []MatchResult `json:"trace"`
}

// Explain evaluates ec and reports every matching policy alongside the
// decision, for audit and debugging.
func (e *Engine) Explain(ctx context.Context, ec *EvaluationContext) (*Explanation, error) {
	if err := checkContext(ec); err != nil {
		return nil, err
	}
	scope := scopeFromContext(ctx)
	ctx, span := e.startSpan(ctx, "arbiter.Explain", scope, ec)
	defer span.End()

	policies, err := e.loadPolicies(ctx, scope)
	if err != nil {
		endSpan(span, nil, false, err)
		return nil, err
	}

	steps := make([]MatchResult, 0, len(policies))
	for _, p := range policies {
		steps = append(steps, e.evaluator.EvaluatePolicy(p, ec))
	}
	result := e.evaluator.EvaluatePolicies(policies, ec)
	endSpan(span, result, false, nil)
	return &Explanation{
		Result:  result,
		Matches: e.evaluator.FindMatchingPolicies(policies, ec),
		Trace:   steps,
	}, nil
}

// CanI is a shorthand for a simple evaluation without attributes.
func (e *Engine) CanI(ctx context.Context, subjectKind SubjectKind, subjectID, action, resourceType, resourceID string) (bool, error) {
	result, err := e.Evaluate(ctx, &EvaluationContext{
		Subject:  Subject{Kind: subjectKind, ID: subjectID},
		Action:   action,
		Resource: Resource{Type: resourceType, ID: resourceID},
	})
	if err != nil {
		return false, err
	}
	return result.Allowed(), nil
}

// loadPolicies returns the tenant's active policies, validated. Invalid
// policies fail the call unless Config.SkipInvalidPolicies is set.
func (e *Engine) loadPolicies(ctx context.Context, scope tenantScope) ([]*policy.Policy, error) {
	policies, err := e.store.ListActivePolicies(ctx, scope.tenantID)
	if err != nil {
		return nil, fmt.Errorf("arbiter: load policies: %w", err)
	}

	valid := make([]*policy.Policy, 0, len(policies))
	for _, p := range policies {
		if verr := policy.Validate(p); verr != nil {
			if !e.config.SkipInvalidPolicies {
				return nil, fmt.Errorf("arbiter: policy %s: %w", p.ID, verr)
			}
			e.logger.Warn("skipping invalid policy",
				slog.String("tenant_id", scope.tenantID),
				slog.String("policy_id", p.ID.String()),
				slog.String("error", verr.Error()),
			)
			continue
		}
		valid = append(valid, p)
	}
	return valid, nil
}

func checkContext(ec *EvaluationContext) error {
	switch {
	case ec == nil:
		return fmt.Errorf("%w: context is nil", ErrInvalidContext)
	case ec.Resource.Type == "":
		return fmt.Errorf("%w: resource type is required", ErrInvalidContext)
	case ec.Action == "":
		return fmt.Errorf("%w: action is required", ErrInvalidContext)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Policy management
// ──────────────────────────────────────────────────

// CreatePolicy validates and stores a new policy in the tenant of ctx.
// ID, version and timestamps are assigned here.
func (e *Engine) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	scope := scopeFromContext(ctx)
	if p.TenantID == "" {
		p.TenantID = scope.tenantID
	}
	if p.AppID == "" {
		p.AppID = scope.appID
	}
	if err := policy.Validate(p); err != nil {
		return err
	}
	if _, err := e.store.GetPolicyByName(ctx, p.TenantID, p.Name); err == nil {
		return fmt.Errorf("policy %q: %w", p.Name, ErrDuplicatePolicy)
	} else if !errors.Is(err, ErrPolicyNotFound) {
		return fmt.Errorf("arbiter: check policy name: %w", err)
	}

	if p.ID.IsNil() {
		p.ID = id.NewPolicyID()
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := e.store.CreatePolicy(ctx, p); err != nil {
		return fmt.Errorf("arbiter: create policy: %w", err)
	}
	e.invalidateTenant(ctx, p.TenantID)
	if e.plugins != nil {
		e.plugins.EmitPolicyCreated(ctx, p)
	}
	return nil
}

// UpdatePolicy validates and stores changes to an existing policy,
// bumping its version.
func (e *Engine) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	existing, err := e.GetPolicy(ctx, p.ID)
	if err != nil {
		return err
	}
	p.TenantID = existing.TenantID
	p.AppID = existing.AppID
	if err := policy.Validate(p); err != nil {
		return err
	}
	if p.Name != existing.Name {
		if _, err := e.store.GetPolicyByName(ctx, p.TenantID, p.Name); err == nil {
			return fmt.Errorf("policy %q: %w", p.Name, ErrDuplicatePolicy)
		} else if !errors.Is(err, ErrPolicyNotFound) {
			return fmt.Errorf("arbiter: check policy name: %w", err)
		}
	}

	p.Version = existing.Version + 1
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := e.store.UpdatePolicy(ctx, p); err != nil {
		return fmt.Errorf("arbiter: update policy: %w", err)
	}
	e.invalidateTenant(ctx, p.TenantID)
	if e.plugins != nil {
		e.plugins.EmitPolicyUpdated(ctx, p)
	}
	return nil
}

// DeletePolicy removes a policy.
func (e *Engine) DeletePolicy(ctx context.Context, polID id.PolicyID) error {
	existing, err := e.GetPolicy(ctx, polID)
	if err != nil {
		return err
	}
	if err := e.store.DeletePolicy(ctx, polID); err != nil {
		return fmt.Errorf("arbiter: delete policy: %w", err)
	}
	e.invalidateTenant(ctx, existing.TenantID)
	if e.plugins != nil {
		e.plugins.EmitPolicyDeleted(ctx, polID)
	}
	return nil
}

// GetPolicy returns a policy by ID. A policy owned by another tenant than
// the one in ctx is reported as not found.
func (e *Engine) GetPolicy(ctx context.Context, polID id.PolicyID) (*policy.Policy, error) {
	p, err := e.store.GetPolicy(ctx, polID)
	if err != nil {
		return nil, err
	}
	if scope := scopeFromContext(ctx); scope.tenantID != "" && p.TenantID != scope.tenantID {
		return nil, fmt.Errorf("policy %s: %w", polID, ErrPolicyNotFound)
	}
	return p, nil
}

// ListPolicies lists policies in the tenant of ctx and returns the total
// count before pagination.
func (e *Engine) ListPolicies(ctx context.Context, filter *policy.ListFilter) ([]*policy.Policy, int64, error) {
	f := policy.ListFilter{}
	if filter != nil {
		f = *filter
	}
	if scope := scopeFromContext(ctx); scope.tenantID != "" {
		f.TenantID = scope.tenantID
	}
	policies, err := e.store.ListPolicies(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("arbiter: list policies: %w", err)
	}
	total, err := e.store.CountPolicies(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("arbiter: count policies: %w", err)
	}
	return policies, total, nil
}

// PurgeTenant removes every policy and decision log of the tenant in ctx.
func (e *Engine) PurgeTenant(ctx context.Context) error {
	scope := scopeFromContext(ctx)
	if scope.tenantID == "" {
		return errors.New("arbiter: purge requires a tenant scope")
	}
	if err := e.store.DeletePoliciesByTenant(ctx, scope.tenantID); err != nil {
		return fmt.Errorf("arbiter: purge policies: %w", err)
	}
	if err := e.store.DeleteDecisionLogsByTenant(ctx, scope.tenantID); err != nil {
		return fmt.Errorf("arbiter: purge decision logs: %w", err)
	}
	e.invalidateTenant(ctx, scope.tenantID)
	return nil
}

func (e *Engine) invalidateTenant(ctx context.Context, tenantID string) {
	e.volatile.invalidate(tenantID)
	if e.cache != nil {
		e.cache.InvalidateTenant(ctx, tenantID)
	}
}
