package arbiter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func (e *Engine) startSpan(ctx context.Context, name string, scope tenantScope, ec *EvaluationContext) (context.Context, trace.Span) {
	if !e.config.tracingEnabled() {
		return ctx, noop.Span{}
	}
	return e.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("arbiter.tenant_id", scope.tenantID),
			attribute.String("arbiter.subject.kind", string(ec.Subject.Kind)),
			attribute.String("arbiter.subject.id", ec.Subject.ID),
			attribute.String("arbiter.action", ec.Action),
			attribute.String("arbiter.resource.type", ec.Resource.Type),
			attribute.String("arbiter.resource.id", ec.Resource.ID),
		),
	)
}

func endSpan(span trace.Span, result *EvaluationResult, cached bool, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if result == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("arbiter.decision", string(result.Decision)),
		attribute.Bool("arbiter.denied_by_policy", result.DeniedByPolicy),
		attribute.Bool("arbiter.default_deny", result.DefaultDeny),
		attribute.Bool("arbiter.cached", cached),
	}
	if p := result.MatchedPolicy(); p != nil {
		attrs = append(attrs,
			attribute.String("arbiter.policy.id", p.ID.String()),
			attribute.String("arbiter.policy.name", p.Name),
		)
	}
	span.SetAttributes(attrs...)
}
