// Package arbiter is an attribute-based access control (ABAC) policy
// engine for Go.
//
// A PolicyEvaluator decides a request against a flat set of prioritized
// allow/deny policies: deny overrides allow, higher priority wins, and
// anything not explicitly allowed is denied. The evaluator is a pure
// function of its inputs. The Engine wraps it with tenant-scoped policy
// storage, caching, plugin hooks and tracing, and integrates with Forge.
//
//	eng, err := arbiter.NewEngine(
//	    arbiter.WithStore(memory.New()),
//	)
//	result, err := eng.Evaluate(ctx, &arbiter.EvaluationContext{
//	    Subject:  arbiter.Subject{Kind: arbiter.SubjectUser, ID: "user_123", Roles: []string{"accountant"}},
//	    Resource: arbiter.Resource{Type: "journal", ID: "je_456"},
//	    Action:   "post",
//	})
package arbiter

import "github.com/xraph/arbiter/policy"

// SubjectKind identifies the type of actor making an authorization request.
type SubjectKind string

const (
	// SubjectUser represents a human user.
	SubjectUser SubjectKind = "user"

	// SubjectAPIKey represents an API key.
	SubjectAPIKey SubjectKind = "api_key"

	// SubjectService represents a service-to-service caller.
	SubjectService SubjectKind = "service"

	// SubjectServiceAcct represents a service account.
	SubjectServiceAcct SubjectKind = "service_acct"
)

// Subject is the acting principal. Roles is a flat list; the engine does
// not resolve role inheritance.
type Subject struct {
	Kind       SubjectKind    `json:"kind"`
	ID         string         `json:"id"`
	Roles      []string       `json:"roles,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Resource is the target of a request.
type Resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Environment carries request-time attributes such as "ip" and "time".
type Environment struct {
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EvaluationContext is the per-request input to an evaluation. A nil
// Environment means the caller supplied no environment attributes, and
// any policy with an environment condition will not match it.
type EvaluationContext struct {
	Subject     Subject      `json:"subject"`
	Resource    Resource     `json:"resource"`
	Action      string       `json:"action"`
	Environment *Environment `json:"environment,omitempty"`
}

// Decision is the authorization outcome.
type Decision string

const (
	// DecisionAllow means the request is permitted.
	DecisionAllow Decision = "allow"

	// DecisionDeny means the request is denied, by policy or by default.
	DecisionDeny Decision = "deny"
)

// MatchResult traces why one policy did or did not match one context.
type MatchResult struct {
	Policy         *policy.Policy `json:"policy"`
	Matched        bool           `json:"matched"`
	MismatchReason string         `json:"mismatch_reason,omitempty"`
}

// EvaluationResult is the outcome of one evaluation. DeniedByPolicy and
// DefaultDeny are mutually exclusive and both false on allow.
type EvaluationResult struct {
	Decision        Decision         `json:"decision"`
	MatchedPolicies []*policy.Policy `json:"matched_policies"`
	Reason          string           `json:"reason"`
	DeniedByPolicy  bool             `json:"denied_by_policy"`
	DefaultDeny     bool             `json:"default_deny"`
	EvalTimeNs      int64            `json:"eval_time_ns,omitempty"`
}

// Allowed reports whether the decision is allow.
func (r *EvaluationResult) Allowed() bool { return r != nil && r.Decision == DecisionAllow }

// MatchedPolicy returns the policy that decided the result, or nil for a
// default deny.
func (r *EvaluationResult) MatchedPolicy() *policy.Policy {
	if r == nil || len(r.MatchedPolicies) == 0 {
		return nil
	}
	return r.MatchedPolicies[0]
}
