package arbiter

import "context"

// Cache stores evaluation results per tenant. The engine consults it
// around the evaluator; the evaluator itself never caches.
type Cache interface {
	// Get returns a cached result, if available.
	Get(ctx context.Context, tenantID string, ec *EvaluationContext) (*EvaluationResult, bool)

	// Set stores a result in the cache.
	Set(ctx context.Context, tenantID string, ec *EvaluationContext, result *EvaluationResult)

	// InvalidateTenant removes all cached results for a tenant.
	InvalidateTenant(ctx context.Context, tenantID string)

	// InvalidateSubject removes all cached results for a specific subject.
	InvalidateSubject(ctx context.Context, tenantID string, subjectKind SubjectKind, subjectID string)
}
