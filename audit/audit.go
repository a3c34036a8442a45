// Package audit records authorization decisions. The Recorder plugin
// writes one decisionlog.Entry per evaluated decision and mirrors policy
// lifecycle events to a zap logger.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/plugin"
	"github.com/xraph/arbiter/policy"
)

// Compile-time hook checks.
var (
	_ plugin.Plugin        = (*Recorder)(nil)
	_ plugin.AfterEvaluate = (*Recorder)(nil)
	_ plugin.PolicyCreated = (*Recorder)(nil)
	_ plugin.PolicyUpdated = (*Recorder)(nil)
	_ plugin.PolicyDeleted = (*Recorder)(nil)
	_ plugin.Shutdown      = (*Recorder)(nil)
)

// Recorder is an Arbiter plugin that persists decision logs.
type Recorder struct {
	store    decisionlog.Store
	logger   *zap.Logger
	denyOnly bool
	now      func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the zap logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithDenyOnly records only deny decisions.
func WithDenyOnly() Option { return func(r *Recorder) { r.denyOnly = true } }

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Recorder) { r.now = now } }

// New creates a Recorder writing to s. A nil store logs without
// persisting.
func New(s decisionlog.Store, opts ...Option) *Recorder {
	r := &Recorder{store: s, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements plugin.Plugin.
func (r *Recorder) Name() string { return "audit" }

// OnAfterEvaluate records the decision.
func (r *Recorder) OnAfterEvaluate(ctx context.Context, ecAny, resultAny any) error {
	ec, ok := ecAny.(*arbiter.EvaluationContext)
	if !ok {
		return fmt.Errorf("audit: unexpected context type %T", ecAny)
	}
	result, ok := resultAny.(*arbiter.EvaluationResult)
	if !ok {
		return fmt.Errorf("audit: unexpected result type %T", resultAny)
	}
	if r.denyOnly && result.Allowed() {
		return nil
	}

	entry := Entry(ctx, ec, result)
	entry.CreatedAt = r.now().UTC()

	fields := []zap.Field{
		zap.String("tenant_id", entry.TenantID),
		zap.String("subject", entry.SubjectKind+":"+entry.SubjectID),
		zap.String("action", entry.Action),
		zap.String("resource", entry.ResourceType+":"+entry.ResourceID),
		zap.String("decision", entry.Decision),
		zap.String("reason", entry.Reason),
		zap.Int64("eval_time_ns", entry.EvalTimeNs),
	}
	if tid, ok := entry.Metadata["trace_id"].(string); ok {
		fields = append(fields, zap.String("trace_id", tid))
	}
	if result.Allowed() {
		r.logger.Debug("authorization allowed", fields...)
	} else {
		r.logger.Info("authorization denied", fields...)
	}

	if r.store == nil {
		return nil
	}
	if err := r.store.CreateDecisionLog(ctx, entry); err != nil {
		r.logger.Error("record decision", zap.Error(err), zap.String("decision_log_id", entry.ID.String()))
		return fmt.Errorf("audit: record decision: %w", err)
	}
	return nil
}

// Entry builds a decision log entry from an evaluation. The tenant comes
// from ctx, and the trace ID from the active span when one is recording.
func Entry(ctx context.Context, ec *arbiter.EvaluationContext, result *arbiter.EvaluationResult) *decisionlog.Entry {
	appID, tenantID := arbiter.TenantFromContext(ctx)
	e := &decisionlog.Entry{
		ID:             id.NewDecisionLogID(),
		TenantID:       tenantID,
		AppID:          appID,
		SubjectKind:    string(ec.Subject.Kind),
		SubjectID:      ec.Subject.ID,
		Action:         ec.Action,
		ResourceType:   ec.Resource.Type,
		ResourceID:     ec.Resource.ID,
		Decision:       string(result.Decision),
		Reason:         result.Reason,
		DeniedByPolicy: result.DeniedByPolicy,
		DefaultDeny:    result.DefaultDeny,
		EvalTimeNs:     result.EvalTimeNs,
	}
	if p := result.MatchedPolicy(); p != nil {
		e.PolicyID = p.ID.String()
		e.PolicyName = p.Name
	}
	if ec.Environment != nil {
		if ip, ok := ec.Environment.Attributes["ip"].(string); ok {
			e.RequestIP = ip
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		e.Metadata = map[string]any{"trace_id": sc.TraceID().String()}
	}
	return e
}

// OnPolicyCreated logs the new policy.
func (r *Recorder) OnPolicyCreated(ctx context.Context, p *policy.Policy) error {
	r.logPolicy(ctx, "policy created", p)
	return nil
}

// OnPolicyUpdated logs the updated policy.
func (r *Recorder) OnPolicyUpdated(ctx context.Context, p *policy.Policy) error {
	r.logPolicy(ctx, "policy updated", p)
	return nil
}

// OnPolicyDeleted logs the deletion.
func (r *Recorder) OnPolicyDeleted(ctx context.Context, polID id.PolicyID) error {
	_, tenantID := arbiter.TenantFromContext(ctx)
	r.logger.Info("policy deleted", zap.String("tenant_id", tenantID), zap.String("policy_id", polID.String()))
	return nil
}

// OnShutdown flushes the logger.
func (r *Recorder) OnShutdown(context.Context) error {
	_ = r.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
	return nil
}

func (r *Recorder) logPolicy(ctx context.Context, msg string, p *policy.Policy) {
	_, tenantID := arbiter.TenantFromContext(ctx)
	r.logger.Info(msg,
		zap.String("tenant_id", tenantID),
		zap.String("policy_id", p.ID.String()),
		zap.String("policy_name", p.Name),
		zap.String("effect", string(p.Effect)),
		zap.Int("priority", p.Priority),
		zap.Int("version", p.Version),
		zap.Bool("active", p.IsActive),
	)
}
