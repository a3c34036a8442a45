package policy_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/arbiter/policy"
)

func validPolicy() *policy.Policy {
	return &policy.Policy{
		Name:     "read-journals",
		Effect:   policy.EffectAllow,
		Priority: 10,
		IsActive: true,
		Resource: policy.ResourceCondition{Types: []string{"journal"}},
		Action:   policy.ActionCondition{Actions: []string{"read"}},
	}
}

func TestValidate_Valid(t *testing.T) {
	p := validPolicy()
	p.Subject = &policy.SubjectCondition{
		Roles:      []string{"accountant"},
		Attributes: []policy.AttributeRule{{Field: "department", Operator: policy.OpEquals, Value: "finance"}},
	}
	p.Environment = &policy.EnvironmentCondition{
		Attributes: []policy.AttributeRule{
			{Field: "ip", Operator: policy.OpIPInCIDR, Value: []any{"10.0.0.0/8", "192.168.0.0/16"}},
			{Field: "time", Operator: policy.OpBetweenHours, Value: []any{8, 18}},
		},
	}
	if err := policy.Validate(p); err != nil {
		t.Fatalf("expected valid policy, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *policy.Policy)
		want   string
	}{
		{"missing name", func(p *policy.Policy) { p.Name = "" }, "Name is required"},
		{"bad effect", func(p *policy.Policy) { p.Effect = "maybe" }, "Effect must be one of"},
		{"no actions", func(p *policy.Policy) { p.Action.Actions = nil }, "Action.Actions is required"},
		{"empty action", func(p *policy.Policy) { p.Action.Actions = []string{""} }, "Action.Actions[0] is required"},
		{"empty resource", func(p *policy.Policy) { p.Resource = policy.ResourceCondition{} }, "resource condition must set"},
		{"unknown operator", func(p *policy.Policy) {
			p.Resource.Attributes = []policy.AttributeRule{{Field: "x", Operator: "like", Value: "a"}}
		}, `unknown operator "like"`},
		{"bad regex", func(p *policy.Policy) {
			p.Subject = &policy.SubjectCondition{
				Attributes: []policy.AttributeRule{{Field: "email", Operator: policy.OpRegex, Value: "(["}},
			}
		}, "invalid regex"},
		{"bad cidr", func(p *policy.Policy) {
			p.Environment = &policy.EnvironmentCondition{
				Attributes: []policy.AttributeRule{{Field: "ip", Operator: policy.OpIPInCIDR, Value: "10.0.0.0/33"}},
			}
		}, "invalid CIDR"},
		{"empty environment", func(p *policy.Policy) {
			p.Environment = &policy.EnvironmentCondition{}
		}, "Environment.Attributes is required"},
		{"bad hour window", func(p *policy.Policy) {
			p.Environment = &policy.EnvironmentCondition{
				Attributes: []policy.AttributeRule{{Field: "time", Operator: policy.OpBetweenHours, Value: []any{9}}},
			}
		}, "between_hours expects"},
		{"in needs list", func(p *policy.Policy) {
			p.Resource.Attributes = []policy.AttributeRule{{Field: "company_id", Operator: policy.OpIn, Value: "c1"}}
		}, "value must be a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(p)
			err := policy.Validate(p)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, policy.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := policy.Validate(nil); !errors.Is(err, policy.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for nil policy, got %v", err)
	}
}

func TestValidateAll(t *testing.T) {
	bad := validPolicy()
	bad.Name = ""
	other := validPolicy()
	other.Name = "other"
	other.Effect = ""

	err := policy.ValidateAll([]*policy.Policy{validPolicy(), bad, other})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, policy.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), `"other"`) {
		t.Errorf("expected joined error to name the second policy, got %q", err.Error())
	}

	if err := policy.ValidateAll([]*policy.Policy{validPolicy()}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestHourWindow(t *testing.T) {
	start, end, err := policy.HourWindow([]float64{22, 6})
	if err != nil {
		t.Fatal(err)
	}
	if start != 22 || end != 6 {
		t.Errorf("expected 22-6, got %d-%d", start, end)
	}
	if _, _, err := policy.HourWindow([]any{8.5, 17}); err == nil {
		t.Error("expected error for fractional hour")
	}
	if _, _, err := policy.HourWindow([]any{8, 25}); err == nil {
		t.Error("expected error for hour out of range")
	}
}
