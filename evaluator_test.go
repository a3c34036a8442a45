package arbiter

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
)

// pol builds an active policy on journals permitting the given actions.
func pol(name string, effect policy.Effect, priority int, actions ...string) *policy.Policy {
	if len(actions) == 0 {
		actions = []string{"read"}
	}
	return &policy.Policy{
		ID:       id.NewPolicyID(),
		Name:     name,
		Effect:   effect,
		Priority: priority,
		IsActive: true,
		Resource: policy.ResourceCondition{Types: []string{"journal"}},
		Action:   policy.ActionCondition{Actions: actions},
	}
}

func readJournal() *EvaluationContext {
	return &EvaluationContext{
		Subject:  Subject{Kind: SubjectUser, ID: "u1", Roles: []string{"accountant"}},
		Resource: Resource{Type: "journal", ID: "je-1"},
		Action:   "read",
	}
}

func officeHours() *policy.EnvironmentCondition {
	return &policy.EnvironmentCondition{
		Attributes: []policy.AttributeRule{{Field: "ip", Operator: policy.OpIPInCIDR, Value: "10.0.0.0/8"}},
	}
}

func names(ps []*policy.Policy) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func assertDefaultDeny(t *testing.T, r *EvaluationResult, reason string) {
	t.Helper()
	if r.Decision != DecisionDeny || !r.DefaultDeny || r.DeniedByPolicy {
		t.Fatalf("expected default deny, got %+v", r)
	}
	if len(r.MatchedPolicies) != 0 {
		t.Fatalf("expected no matched policies, got %v", names(r.MatchedPolicies))
	}
	if r.Reason != reason {
		t.Fatalf("expected reason %q, got %q", reason, r.Reason)
	}
}

// ──────────────────────────────────────────────────
// EvaluatePolicies scenarios
// ──────────────────────────────────────────────────

func TestEvaluatePolicies_EmptyList(t *testing.T) {
	r := NewEvaluator().EvaluatePolicies(nil, readJournal())
	assertDefaultDeny(t, r, "No active policies found - default deny")
	if r.MatchedPolicies == nil {
		t.Fatal("matched policies should be an empty slice, not nil")
	}
}

func TestEvaluatePolicies_AllInactive(t *testing.T) {
	a := pol("allow", policy.EffectAllow, 10)
	a.IsActive = false
	d := pol("deny", policy.EffectDeny, 10)
	d.IsActive = false

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{a, d}, readJournal())
	assertDefaultDeny(t, r, "No active policies found - default deny")
}

func TestEvaluatePolicies_SingleAllow(t *testing.T) {
	a := pol("read-journals", policy.EffectAllow, 10, "read")

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{a}, readJournal())
	if r.Decision != DecisionAllow || r.DeniedByPolicy || r.DefaultDeny {
		t.Fatalf("expected allow, got %+v", r)
	}
	if r.Reason != "Allowed by policy: read-journals" {
		t.Fatalf("unexpected reason %q", r.Reason)
	}
	if r.MatchedPolicy() != a {
		t.Fatal("expected the allow policy to be reported")
	}
	if !r.Allowed() {
		t.Fatal("Allowed() should be true")
	}
}

func TestEvaluatePolicies_DenyWinsTieAtSamePriority(t *testing.T) {
	a := pol("allow", policy.EffectAllow, 5)
	d := pol("deny", policy.EffectDeny, 5)

	for _, order := range [][]*policy.Policy{{a, d}, {d, a}} {
		r := NewEvaluator().EvaluatePolicies(order, readJournal())
		if r.Decision != DecisionDeny || !r.DeniedByPolicy || r.DefaultDeny {
			t.Fatalf("expected deny by policy, got %+v", r)
		}
		if r.Reason != "Denied by policy: deny" {
			t.Fatalf("unexpected reason %q", r.Reason)
		}
	}
}

func TestEvaluatePolicies_AllowWhenDenyDoesNotMatch(t *testing.T) {
	a := pol("allow", policy.EffectAllow, 20)
	d := pol("deny-post", policy.EffectDeny, 5, "post")

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{a, d}, readJournal())
	if r.Decision != DecisionAllow {
		t.Fatalf("expected allow, got %+v", r)
	}
}

func TestEvaluatePolicies_EnvironmentRequiredButMissing(t *testing.T) {
	a := pol("office-only", policy.EffectAllow, 10)
	a.Environment = officeHours()

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{a}, readJournal())
	assertDefaultDeny(t, r, "No matching allow policy found - default deny")

	// Same policy matches once the environment is supplied.
	ec := readJournal()
	ec.Environment = &Environment{Attributes: map[string]any{"ip": "10.1.2.3"}}
	r = NewEvaluator().EvaluatePolicies([]*policy.Policy{a}, ec)
	if r.Decision != DecisionAllow {
		t.Fatalf("expected allow with environment, got %+v", r)
	}
}

func TestEvaluatePolicies_HighestPriorityAllowReported(t *testing.T) {
	low := pol("low", policy.EffectAllow, 10)
	high := pol("high", policy.EffectAllow, 20)

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{low, high}, readJournal())
	if got := names(r.MatchedPolicies); len(got) != 1 || got[0] != "high" {
		t.Fatalf("expected only [high], got %v", got)
	}
}

func TestEvaluatePolicies_DenyShortCircuitsHigherAllow(t *testing.T) {
	// Deny-overrides is absolute: a matching deny beats an allow of
	// higher priority.
	a := pol("allow", policy.EffectAllow, 100)
	d := pol("deny", policy.EffectDeny, 1)

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{a, d}, readJournal())
	if !r.DeniedByPolicy || r.MatchedPolicy() != d {
		t.Fatalf("expected deny by low-priority deny policy, got %+v", r)
	}
}

func TestEvaluatePolicies_HighestPriorityDenyReported(t *testing.T) {
	d1 := pol("deny-low", policy.EffectDeny, 1)
	d2 := pol("deny-high", policy.EffectDeny, 9)
	d3 := pol("deny-mid", policy.EffectDeny, 5)

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{d1, d2, d3}, readJournal())
	if r.MatchedPolicy() != d2 {
		t.Fatalf("expected deny-high, got %v", names(r.MatchedPolicies))
	}
}

func TestEvaluatePolicies_StableOnFullTies(t *testing.T) {
	first := pol("first", policy.EffectDeny, 3)
	second := pol("second", policy.EffectDeny, 3)

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{first, second}, readJournal())
	if r.MatchedPolicy() != first {
		t.Fatalf("expected input order on full ties, got %v", names(r.MatchedPolicies))
	}
	r = NewEvaluator().EvaluatePolicies([]*policy.Policy{second, first}, readJournal())
	if r.MatchedPolicy() != second {
		t.Fatalf("expected input order on full ties, got %v", names(r.MatchedPolicies))
	}
}

func TestEvaluatePolicies_InactiveIgnored(t *testing.T) {
	d := pol("deny", policy.EffectDeny, 100)
	d.IsActive = false
	a := pol("allow", policy.EffectAllow, 1)

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{d, a}, readJournal())
	if r.Decision != DecisionAllow {
		t.Fatalf("inactive deny should be invisible, got %+v", r)
	}
}

func TestEvaluatePolicies_NoMatchingAllow(t *testing.T) {
	a := pol("post-only", policy.EffectAllow, 1, "post")

	r := NewEvaluator().EvaluatePolicies([]*policy.Policy{a}, readJournal())
	assertDefaultDeny(t, r, "No matching allow policy found - default deny")
}

func TestEvaluatePolicies_DoesNotReorderInput(t *testing.T) {
	low := pol("low", policy.EffectAllow, 1)
	high := pol("high", policy.EffectAllow, 9)
	input := []*policy.Policy{low, high}

	NewEvaluator().EvaluatePolicies(input, readJournal())
	if input[0] != low || input[1] != high {
		t.Fatal("caller's slice must not be reordered")
	}
}

// ──────────────────────────────────────────────────
// EvaluatePolicy
// ──────────────────────────────────────────────────

func TestEvaluatePolicy_MismatchOrder(t *testing.T) {
	p := pol("p", policy.EffectAllow, 1, "read", "list")
	p.Subject = &policy.SubjectCondition{Kinds: []string{"user"}}
	p.Environment = officeHours()

	tests := []struct {
		name   string
		mutate func(ec *EvaluationContext)
		want   string
	}{
		{
			name: "subject checked first",
			mutate: func(ec *EvaluationContext) {
				ec.Subject.Kind = SubjectService
				ec.Resource.Type = "ledger"
				ec.Action = "post"
			},
			want: `subject kind "service" not in [user]`,
		},
		{
			name: "resource before action",
			mutate: func(ec *EvaluationContext) {
				ec.Resource.Type = "ledger"
				ec.Action = "post"
			},
			want: `resource type "ledger" not in [journal]`,
		},
		{
			name:   "action before environment",
			mutate: func(ec *EvaluationContext) { ec.Action = "post" },
			want:   `action "post" not in allowed actions [read, list]`,
		},
		{
			name:   "environment missing",
			mutate: func(ec *EvaluationContext) {},
			want:   "environment not provided",
		},
		{
			name: "environment mismatch",
			mutate: func(ec *EvaluationContext) {
				ec.Environment = &Environment{Attributes: map[string]any{"ip": "203.0.113.9"}}
			},
			want: "environment attribute ip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := readJournal()
			tt.mutate(ec)
			r := NewEvaluator().EvaluatePolicy(p, ec)
			if r.Matched {
				t.Fatal("expected mismatch")
			}
			if r.Policy != p {
				t.Fatal("result should reference the evaluated policy")
			}
			if !strings.HasPrefix(r.MismatchReason, tt.want) {
				t.Fatalf("expected reason starting %q, got %q", tt.want, r.MismatchReason)
			}
		})
	}
}

func TestEvaluatePolicy_Match(t *testing.T) {
	p := pol("p", policy.EffectDeny, 1)
	p.Subject = &policy.SubjectCondition{Roles: []string{"accountant", "controller"}}

	r := NewEvaluator().EvaluatePolicy(p, readJournal())
	if !r.Matched || r.MismatchReason != "" {
		t.Fatalf("expected match, got %+v", r)
	}
}

func TestEvaluatePolicy_NilSubjectMatchesAnySubject(t *testing.T) {
	p := pol("p", policy.EffectAllow, 1)
	ec := readJournal()
	ec.Subject = Subject{Kind: SubjectAPIKey, ID: "key_1"}

	if r := NewEvaluator().EvaluatePolicy(p, ec); !r.Matched {
		t.Fatalf("absent subject condition should match any subject: %s", r.MismatchReason)
	}
}

func TestEvaluatePolicy_Inactive(t *testing.T) {
	p := pol("p", policy.EffectAllow, 1)
	p.IsActive = false
	if r := NewEvaluator().EvaluatePolicy(p, readJournal()); r.Matched {
		t.Fatal("inactive policy must not match")
	}
}

// ──────────────────────────────────────────────────
// WouldDeny / FindMatchingPolicies
// ──────────────────────────────────────────────────

func TestWouldDeny(t *testing.T) {
	ev := NewEvaluator()
	allow := pol("allow", policy.EffectAllow, 10)
	deny := pol("deny", policy.EffectDeny, 1)
	denyPost := pol("deny-post", policy.EffectDeny, 1, "post")
	inactiveDeny := pol("inactive-deny", policy.EffectDeny, 1)
	inactiveDeny.IsActive = false

	tests := []struct {
		name     string
		policies []*policy.Policy
		want     bool
	}{
		{"no policies", nil, false},
		{"allow only", []*policy.Policy{allow}, false},
		{"matching deny", []*policy.Policy{allow, deny}, true},
		{"non-matching deny", []*policy.Policy{allow, denyPost}, false},
		{"inactive deny", []*policy.Policy{inactiveDeny}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := readJournal()
			got := ev.WouldDeny(tt.policies, ec)
			if got != tt.want {
				t.Fatalf("WouldDeny = %v, want %v", got, tt.want)
			}
			if full := ev.EvaluatePolicies(tt.policies, ec); full.DeniedByPolicy != got {
				t.Fatalf("WouldDeny (%v) disagrees with EvaluatePolicies.DeniedByPolicy (%v)", got, full.DeniedByPolicy)
			}
		})
	}
}

func TestFindMatchingPolicies(t *testing.T) {
	low := pol("low-allow", policy.EffectAllow, 1)
	high := pol("high-deny", policy.EffectDeny, 50)
	miss := pol("post-only", policy.EffectAllow, 100, "post")
	off := pol("inactive", policy.EffectAllow, 100)
	off.IsActive = false

	ev := NewEvaluator()
	input := []*policy.Policy{low, miss, off, high}
	matches := ev.FindMatchingPolicies(input, readJournal())

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Policy != low || matches[1].Policy != high {
		t.Fatalf("expected input order [low-allow high-deny], got [%s %s]", matches[0].Policy.Name, matches[1].Policy.Name)
	}
	for _, m := range matches {
		if !m.Matched {
			t.Fatal("every returned result should be a match")
		}
	}

	// Superset of the decision's matched policies.
	decided := ev.EvaluatePolicies(input, readJournal())
	for _, p := range decided.MatchedPolicies {
		found := false
		for _, m := range matches {
			if m.Policy == p {
				found = true
			}
		}
		if !found {
			t.Fatalf("decision policy %s missing from matches", p.Name)
		}
	}

	if got := ev.FindMatchingPolicies(nil, readJournal()); got == nil || len(got) != 0 {
		t.Fatal("expected empty, non-nil result for no policies")
	}
}

// ──────────────────────────────────────────────────
// Injected matchers
// ──────────────────────────────────────────────────

type denyAllResources struct{}

func (denyAllResources) Matches(policy.ResourceCondition, Resource) bool { return false }
func (denyAllResources) MismatchReason(policy.ResourceCondition, Resource) string {
	return "custom resource rejection"
}

type silentActionMatcher struct{ allowed string }

func (m silentActionMatcher) Matches(_ policy.ActionCondition, action string) bool {
	return action == m.allowed
}

func TestNewEvaluator_CustomMatchers(t *testing.T) {
	ev := NewEvaluator(WithResourceMatcher(denyAllResources{}))
	r := ev.EvaluatePolicy(pol("p", policy.EffectAllow, 1), readJournal())
	if r.Matched || r.MismatchReason != "custom resource rejection" {
		t.Fatalf("expected custom matcher reason, got %+v", r)
	}

	ev = NewEvaluator(WithActionMatcher(silentActionMatcher{allowed: "approve"}))
	ec := readJournal()
	ec.Action = "approve"
	if r := ev.EvaluatePolicy(pol("p", policy.EffectAllow, 1, "read"), ec); !r.Matched {
		t.Fatalf("expected custom action matcher to accept approve: %s", r.MismatchReason)
	}
}

// ──────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────

func TestEvaluatorConcurrentSharedPolicies(t *testing.T) {
	env := officeHours()
	env.Attributes = append(env.Attributes, policy.AttributeRule{Field: "time", Operator: policy.OpBetweenHours, Value: []any{8, 18}})
	office := pol("office-post", policy.EffectAllow, 30, "post")
	office.Environment = env
	freeze := pol("freeze", policy.EffectDeny, 10, "delete")
	freeze.Subject = &policy.SubjectCondition{Roles: []string{"accountant"}}
	inactive := pol("inactive-all", policy.EffectAllow, 99, "*")
	inactive.IsActive = false
	policies := []*policy.Policy{
		pol("read", policy.EffectAllow, 5, "read"),
		freeze,
		office,
		inactive,
		pol("read-high", policy.EffectAllow, 20, "read", "list"),
	}

	before, err := json.Marshal(policies)
	if err != nil {
		t.Fatal(err)
	}
	order := names(policies)

	requests := map[string]string{
		"read":    "Allowed by policy: read-high",
		"delete":  "Denied by policy: freeze",
		"post":    "Allowed by policy: office-post",
		"approve": ReasonNoMatchingAllow,
	}

	ev := NewEvaluator()
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := range 32 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 50 {
				for action, want := range requests {
					ec := readJournal()
					ec.Action = action
					ec.Environment = &Environment{Attributes: map[string]any{
						"ip":   "10.1.2.3",
						"time": time.Date(2026, 3, 2, 9, g, i, 0, time.UTC),
					}}
					if r := ev.EvaluatePolicies(policies, ec); r.Reason != want {
						errs <- action + ": " + r.Reason
						return
					}
					if ev.WouldDeny(policies, ec) != (action == "delete") {
						errs <- action + ": WouldDeny disagrees"
						return
					}
					for _, m := range ev.FindMatchingPolicies(policies, ec) {
						if !m.Matched || !m.Policy.IsActive {
							errs <- action + ": unexpected match " + m.Policy.Name
							return
						}
					}
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}

	after, err := json.Marshal(policies)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("evaluation modified the caller's policies")
	}
	if got := names(policies); strings.Join(got, ",") != strings.Join(order, ",") {
		t.Fatalf("evaluation reordered the caller's slice: %v", got)
	}
}
