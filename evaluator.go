package arbiter

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/xraph/arbiter/policy"
)

// Decision reasons.
const (
	ReasonNoActivePolicies = "No active policies found - default deny"
	ReasonNoMatchingAllow  = "No matching allow policy found - default deny"
	reasonDeniedBy         = "Denied by policy: "
	reasonAllowedBy        = "Allowed by policy: "
)

// Evaluator decides requests against a policy set. Implementations must
// be pure: no I/O, no shared mutable state, and denial is a result, never
// an error.
type Evaluator interface {
	// EvaluatePolicy matches a single policy against a context.
	EvaluatePolicy(p *policy.Policy, ec *EvaluationContext) MatchResult

	// EvaluatePolicies produces the allow/deny decision for a context.
	EvaluatePolicies(policies []*policy.Policy, ec *EvaluationContext) *EvaluationResult

	// WouldDeny reports whether an active deny policy matches the context.
	WouldDeny(policies []*policy.Policy, ec *EvaluationContext) bool

	// FindMatchingPolicies lists every active policy that matches, in
	// input order.
	FindMatchingPolicies(policies []*policy.Policy, ec *EvaluationContext) []MatchResult
}

// Compile-time interface check.
var _ Evaluator = (*PolicyEvaluator)(nil)

// PolicyEvaluator is the default Evaluator. It delegates condition checks
// to one matcher per condition kind. It holds no per-call state and is
// safe for concurrent use.
type PolicyEvaluator struct {
	subjects     SubjectMatcher
	resources    ResourceMatcher
	actions      ActionMatcher
	environments EnvironmentMatcher
}

// EvaluatorOption configures a PolicyEvaluator.
type EvaluatorOption func(*PolicyEvaluator)

// WithSubjectMatcher replaces the subject condition matcher.
func WithSubjectMatcher(m SubjectMatcher) EvaluatorOption {
	return func(pe *PolicyEvaluator) { pe.subjects = m }
}

// WithResourceMatcher replaces the resource condition matcher.
func WithResourceMatcher(m ResourceMatcher) EvaluatorOption {
	return func(pe *PolicyEvaluator) { pe.resources = m }
}

// WithActionMatcher replaces the action condition matcher.
func WithActionMatcher(m ActionMatcher) EvaluatorOption {
	return func(pe *PolicyEvaluator) { pe.actions = m }
}

// WithEnvironmentMatcher replaces the environment condition matcher.
func WithEnvironmentMatcher(m EnvironmentMatcher) EvaluatorOption {
	return func(pe *PolicyEvaluator) { pe.environments = m }
}

// NewEvaluator returns a PolicyEvaluator using the default attribute
// matchers unless overridden.
func NewEvaluator(opts ...EvaluatorOption) *PolicyEvaluator {
	pe := &PolicyEvaluator{
		subjects:     DefaultSubjectMatcher(),
		resources:    DefaultResourceMatcher(),
		actions:      DefaultActionMatcher(),
		environments: DefaultEnvironmentMatcher(),
	}
	for _, opt := range opts {
		opt(pe)
	}
	return pe
}

// EvaluatePolicy matches p against ec. Conditions are checked in the
// order subject, resource, action, environment, and the first failing
// one supplies the mismatch reason. An inactive policy never matches.
func (pe *PolicyEvaluator) EvaluatePolicy(p *policy.Policy, ec *EvaluationContext) MatchResult {
	if !p.IsActive {
		return MatchResult{Policy: p, Matched: false, MismatchReason: "policy is inactive"}
	}
	if reason, ok := pe.match(p, ec); !ok {
		return MatchResult{Policy: p, Matched: false, MismatchReason: reason}
	}
	return MatchResult{Policy: p, Matched: true}
}

func (pe *PolicyEvaluator) match(p *policy.Policy, ec *EvaluationContext) (string, bool) {
	if p.Subject != nil && !pe.subjects.Matches(*p.Subject, ec.Subject) {
		return orDefault(pe.subjects.MismatchReason(*p.Subject, ec.Subject), "subject condition not satisfied"), false
	}

	if !pe.resources.Matches(p.Resource, ec.Resource) {
		return orDefault(pe.resources.MismatchReason(p.Resource, ec.Resource), "resource condition not satisfied"), false
	}

	if !pe.actions.Matches(p.Action, ec.Action) {
		return fmt.Sprintf("action %q not in allowed actions %s", ec.Action, formatList(p.Action.Actions)), false
	}

	if p.Environment != nil {
		if ec.Environment == nil {
			return "environment not provided", false
		}
		if !pe.environments.Matches(*p.Environment, *ec.Environment) {
			return orDefault(pe.environments.MismatchReason(*p.Environment, *ec.Environment), "environment condition not satisfied"), false
		}
	}

	return "", true
}

// EvaluatePolicies decides ec against policies. Inactive policies are
// ignored. The rest are ordered by priority descending, with deny ahead
// of allow at equal priority and input order preserved on full ties. The
// first matching deny policy denies; otherwise the first matching allow
// policy allows; otherwise the request is denied by default.
func (pe *PolicyEvaluator) EvaluatePolicies(policies []*policy.Policy, ec *EvaluationContext) *EvaluationResult {
	active := activePolicies(policies)
	if len(active) == 0 {
		return defaultDeny(ReasonNoActivePolicies)
	}

	slices.SortStableFunc(active, comparePolicies)

	denies, allows := partition(active)

	for _, p := range denies {
		if _, ok := pe.match(p, ec); ok {
			return &EvaluationResult{
				Decision:        DecisionDeny,
				MatchedPolicies: []*policy.Policy{p},
				Reason:          reasonDeniedBy + p.Name,
				DeniedByPolicy:  true,
			}
		}
	}

	for _, p := range allows {
		if _, ok := pe.match(p, ec); ok {
			return &EvaluationResult{
				Decision:        DecisionAllow,
				MatchedPolicies: []*policy.Policy{p},
				Reason:          reasonAllowedBy + p.Name,
			}
		}
	}

	return defaultDeny(ReasonNoMatchingAllow)
}

// WouldDeny reports whether any active deny policy matches ec. It agrees
// with EvaluatePolicies(...).DeniedByPolicy without scanning allows.
func (pe *PolicyEvaluator) WouldDeny(policies []*policy.Policy, ec *EvaluationContext) bool {
	for _, p := range policies {
		if p == nil || !p.IsActive || !p.IsDeny() {
			continue
		}
		if _, ok := pe.match(p, ec); ok {
			return true
		}
	}
	return false
}

// FindMatchingPolicies returns a result for every active policy that
// matches ec, regardless of effect. Results keep input order and are not
// priority sorted.
func (pe *PolicyEvaluator) FindMatchingPolicies(policies []*policy.Policy, ec *EvaluationContext) []MatchResult {
	matches := make([]MatchResult, 0)
	for _, p := range policies {
		if p == nil || !p.IsActive {
			continue
		}
		if r := pe.EvaluatePolicy(p, ec); r.Matched {
			matches = append(matches, r)
		}
	}
	return matches
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func activePolicies(policies []*policy.Policy) []*policy.Policy {
	active := make([]*policy.Policy, 0, len(policies))
	for _, p := range policies {
		if p != nil && p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// comparePolicies orders by priority descending, then deny before allow.
func comparePolicies(a, b *policy.Policy) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	switch {
	case a.IsDeny() && !b.IsDeny():
		return -1
	case !a.IsDeny() && b.IsDeny():
		return 1
	}
	return 0
}

func partition(sorted []*policy.Policy) (denies, allows []*policy.Policy) {
	for _, p := range sorted {
		if p.IsDeny() {
			denies = append(denies, p)
		} else {
			allows = append(allows, p)
		}
	}
	return denies, allows
}

func defaultDeny(reason string) *EvaluationResult {
	return &EvaluationResult{
		Decision:        DecisionDeny,
		MatchedPolicies: []*policy.Policy{},
		Reason:          reason,
		DefaultDeny:     true,
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
