package arbiter

import (
	"strings"
	"testing"
	"time"

	"github.com/xraph/arbiter/policy"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"*", "anything", true},
		{"journal", "journal", true},
		{"journal", "journals", false},
		{"journal:*", "journal:je-1", true},
		{"journal:*", "ledger:1", false},
		{"post*", "post", true},
		{"post*", "posted", true},
		{"*post", "repost", false},
		{"", "", true},
	}

	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.value); got != tt.want {
			t.Fatalf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}

func TestSubjectMatcher(t *testing.T) {
	m := DefaultSubjectMatcher()
	alice := Subject{
		Kind:  SubjectUser,
		ID:    "alice",
		Roles: []string{"accountant"},
		Attributes: map[string]any{
			"department": "finance",
			"clearance":  3,
			"address":    map[string]any{"country": "NG"},
		},
	}

	tests := []struct {
		name   string
		cond   policy.SubjectCondition
		want   bool
		reason string
	}{
		{"empty condition", policy.SubjectCondition{}, true, ""},
		{"kind match", policy.SubjectCondition{Kinds: []string{"user", "service"}}, true, ""},
		{"kind mismatch", policy.SubjectCondition{Kinds: []string{"api_key"}}, false, `subject kind "user" not in [api_key]`},
		{"id glob", policy.SubjectCondition{IDs: []string{"ali*"}}, true, ""},
		{"id mismatch", policy.SubjectCondition{IDs: []string{"bob"}}, false, `subject id "alice" not in [bob]`},
		{"role intersection", policy.SubjectCondition{Roles: []string{"auditor", "accountant"}}, true, ""},
		{"role mismatch", policy.SubjectCondition{Roles: []string{"auditor"}}, false, "subject roles [accountant] do not include any of [auditor]"},
		{
			"attribute eq",
			policy.SubjectCondition{Attributes: []policy.AttributeRule{{Field: "department", Operator: policy.OpEquals, Value: "finance"}}},
			true, "",
		},
		{
			"nested attribute",
			policy.SubjectCondition{Attributes: []policy.AttributeRule{{Field: "address.country", Operator: policy.OpIn, Value: []any{"NG", "GH"}}}},
			true, "",
		},
		{
			"pseudo-field kind",
			policy.SubjectCondition{Attributes: []policy.AttributeRule{{Field: "kind", Operator: policy.OpEquals, Value: "user"}}},
			true, "",
		},
		{
			"attribute gte mismatch",
			policy.SubjectCondition{Attributes: []policy.AttributeRule{{Field: "clearance", Operator: policy.OpGTE, Value: 5}}},
			false, "subject attribute clearance: expected gte 5, got 3",
		},
		{
			"missing attribute",
			policy.SubjectCondition{Attributes: []policy.AttributeRule{{Field: "team", Operator: policy.OpEquals, Value: "ap"}}},
			false, `subject attribute team: expected eq "ap", got <missing>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Matches(tt.cond, alice); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
			if got := m.MismatchReason(tt.cond, alice); got != tt.reason {
				t.Fatalf("MismatchReason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestResourceMatcher(t *testing.T) {
	m := DefaultResourceMatcher()
	je := Resource{Type: "journal", ID: "je-1", Attributes: map[string]any{"amount": 1500.0, "status": "draft"}}

	tests := []struct {
		name string
		cond policy.ResourceCondition
		want bool
	}{
		{"type", policy.ResourceCondition{Types: []string{"journal"}}, true},
		{"type wildcard", policy.ResourceCondition{Types: []string{"*"}}, true},
		{"type mismatch", policy.ResourceCondition{Types: []string{"ledger"}}, false},
		{"bare id", policy.ResourceCondition{IDs: []string{"je-1"}}, true},
		{"qualified id", policy.ResourceCondition{IDs: []string{"journal:je-1"}}, true},
		{"qualified glob", policy.ResourceCondition{IDs: []string{"journal:*"}}, true},
		{"id mismatch", policy.ResourceCondition{IDs: []string{"je-2"}}, false},
		{
			"amount below threshold",
			policy.ResourceCondition{Attributes: []policy.AttributeRule{{Field: "amount", Operator: policy.OpLessThan, Value: 10000}}},
			true,
		},
		{
			"status not in",
			policy.ResourceCondition{Attributes: []policy.AttributeRule{{Field: "status", Operator: policy.OpNotIn, Value: []string{"posted", "void"}}}},
			true,
		},
		{
			"pseudo-field type",
			policy.ResourceCondition{Attributes: []policy.AttributeRule{{Field: "type", Operator: policy.OpStartsWith, Value: "jour"}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Matches(tt.cond, je); got != tt.want {
				t.Fatalf("Matches = %v, want %v (%s)", got, tt.want, m.MismatchReason(tt.cond, je))
			}
		})
	}
}

func TestActionMatcher(t *testing.T) {
	m := DefaultActionMatcher()
	cond := policy.ActionCondition{Actions: []string{"read", "journal.*"}}

	for action, want := range map[string]bool{
		"read":           true,
		"journal.post":   true,
		"journal.delete": true,
		"write":          false,
		"":               false,
	} {
		if got := m.Matches(cond, action); got != want {
			t.Fatalf("Matches(%q) = %v, want %v", action, got, want)
		}
	}
}

func TestEnvironmentMatcher(t *testing.T) {
	m := DefaultEnvironmentMatcher()
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	env := Environment{Attributes: map[string]any{
		"ip":   "10.1.2.3",
		"time": noon,
	}}

	tests := []struct {
		name string
		rule policy.AttributeRule
		want bool
	}{
		{"ip in cidr", policy.AttributeRule{Field: "ip", Operator: policy.OpIPInCIDR, Value: "10.0.0.0/8"}, true},
		{"ip in cidr list", policy.AttributeRule{Field: "ip", Operator: policy.OpIPInCIDR, Value: []string{"192.168.0.0/16", "10.0.0.0/8"}}, true},
		{"ip outside", policy.AttributeRule{Field: "ip", Operator: policy.OpIPInCIDR, Value: "192.168.0.0/16"}, false},
		{"business hours", policy.AttributeRule{Field: "time", Operator: policy.OpBetweenHours, Value: []any{9, 17}}, true},
		{"night window wraps", policy.AttributeRule{Field: "time", Operator: policy.OpBetweenHours, Value: []any{22, 6}}, false},
		{"after", policy.AttributeRule{Field: "time", Operator: policy.OpTimeAfter, Value: "2026-01-01T00:00:00Z"}, true},
		{"before", policy.AttributeRule{Field: "time", Operator: policy.OpTimeBefore, Value: "2026-01-01T00:00:00Z"}, false},
		{"exists", policy.AttributeRule{Field: "ip", Operator: policy.OpExists}, true},
		{"not exists", policy.AttributeRule{Field: "device", Operator: policy.OpNotExists}, true},
		{"neq on missing", policy.AttributeRule{Field: "device", Operator: policy.OpNotEquals, Value: "kiosk"}, true},
		{"regex", policy.AttributeRule{Field: "ip", Operator: policy.OpRegex, Value: `^10\.`}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := policy.EnvironmentCondition{Attributes: []policy.AttributeRule{tt.rule}}
			if got := m.Matches(cond, env); got != tt.want {
				t.Fatalf("Matches = %v, want %v (%s)", got, tt.want, m.MismatchReason(cond, env))
			}
		})
	}
}

func TestBetweenHoursWrapsMidnight(t *testing.T) {
	window := []any{22, 6}
	for hour, want := range map[int]bool{21: false, 22: true, 23: true, 0: true, 5: true, 6: false, 12: false} {
		at := time.Date(2026, 3, 2, hour, 30, 0, 0, time.UTC)
		got, err := betweenHours(at, window)
		if err != nil {
			t.Fatalf("betweenHours: %v", err)
		}
		if got != want {
			t.Fatalf("hour %d: got %v, want %v", hour, got, want)
		}
	}
}

func TestInvalidConditionIsMismatch(t *testing.T) {
	m := DefaultEnvironmentMatcher()
	env := Environment{Attributes: map[string]any{"ip": "10.1.2.3", "name": "x"}}

	tests := []struct {
		name string
		rule policy.AttributeRule
	}{
		{"bad cidr", policy.AttributeRule{Field: "ip", Operator: policy.OpIPInCIDR, Value: "not-a-cidr"}},
		{"bad regex", policy.AttributeRule{Field: "name", Operator: policy.OpRegex, Value: "("}},
		{"unknown operator", policy.AttributeRule{Field: "name", Operator: "resembles", Value: "y"}},
		{"bad hour window", policy.AttributeRule{Field: "name", Operator: policy.OpBetweenHours, Value: []any{9}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := policy.EnvironmentCondition{Attributes: []policy.AttributeRule{tt.rule}}
			if m.Matches(cond, env) {
				t.Fatal("invalid condition must not match")
			}
			if reason := m.MismatchReason(cond, env); !strings.HasPrefix(reason, "invalid condition") {
				t.Fatalf("expected invalid condition reason, got %q", reason)
			}
		})
	}
}

func TestNumericComparisonRejectsMalformedStrings(t *testing.T) {
	tests := []struct {
		actual any
		want   bool
	}{
		{"1000abc", false},
		{"1e3", true},
		{" 1000 ", true},
		{"", false},
		{"0x", false},
		{1000, true},
	}

	for _, tt := range tests {
		got, err := evaluateRule(policy.OpGreaterThan, tt.actual, true, 500)
		if err != nil {
			t.Fatalf("gt %q: %v", tt.actual, err)
		}
		if got != tt.want {
			t.Fatalf("gt %q 500 = %v, want %v", tt.actual, got, tt.want)
		}
	}

	m := DefaultResourceMatcher()
	cond := policy.ResourceCondition{Attributes: []policy.AttributeRule{{Field: "amount", Operator: policy.OpLTE, Value: 10000}}}
	if m.Matches(cond, Resource{Type: "journal", Attributes: map[string]any{"amount": "50abc"}}) {
		t.Fatal("a malformed amount must not satisfy a numeric rule")
	}
}

func TestNilAttributeIsAbsent(t *testing.T) {
	tests := []struct {
		op       policy.Operator
		expected any
		want     bool
	}{
		{policy.OpEquals, "<nil>", false},
		{policy.OpIn, []string{"<nil>"}, false},
		{policy.OpStartsWith, "<", false},
		{policy.OpNotEquals, "x", true},
		{policy.OpNotIn, []string{"x"}, true},
		{policy.OpExists, nil, false},
		{policy.OpNotExists, nil, true},
	}

	for _, tt := range tests {
		got, err := evaluateRule(tt.op, nil, true, tt.expected)
		if err != nil {
			t.Fatalf("%s: %v", tt.op, err)
		}
		if got != tt.want {
			t.Fatalf("%s on nil = %v, want %v", tt.op, got, tt.want)
		}
	}
}
