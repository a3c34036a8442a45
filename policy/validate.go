package policy

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared struct validator. validator.Validate caches
// struct metadata and is safe for concurrent use.
var validate = validator.New()

// ValidationError lists every problem found in one policy. It unwraps to
// ErrInvalid.
type ValidationError struct {
	Policy   string
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	name := e.Policy
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("%s %q: %s", ErrInvalid, name, strings.Join(e.Problems, "; "))
}

// Unwrap lets errors.Is match ErrInvalid.
func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks that p is well formed: required fields are populated,
// the resource condition constrains something, and every attribute rule
// uses a known operator with a value that operator can evaluate.
func Validate(p *Policy) error {
	if p == nil {
		return &ValidationError{Problems: []string{"policy is nil"}}
	}

	var problems []string
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if p.Resource.IsEmpty() {
		problems = append(problems, "resource condition must set types, ids or attributes")
	}
	if p.Subject != nil {
		problems = append(problems, checkRules("subject", p.Subject.Attributes)...)
	}
	problems = append(problems, checkRules("resource", p.Resource.Attributes)...)
	if p.Environment != nil {
		problems = append(problems, checkRules("environment", p.Environment.Attributes)...)
	}

	if len(problems) > 0 {
		return &ValidationError{Policy: p.Name, Problems: problems}
	}
	return nil
}

// ValidateAll validates every policy and joins the failures.
func ValidateAll(policies []*Policy) error {
	var errs []error
	for _, p := range policies {
		if err := Validate(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

func checkRules(scope string, rules []AttributeRule) []string {
	var problems []string
	for i, r := range rules {
		if err := CheckRule(r); err != nil {
			problems = append(problems, fmt.Sprintf("%s attribute rule %d (%s): %v", scope, i, r.Field, err))
		}
	}
	return problems
}

// CheckRule reports whether r can be evaluated.
func CheckRule(r AttributeRule) error {
	if !r.Operator.Known() {
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	switch r.Operator {
	case OpRegex:
		s, ok := r.Value.(string)
		if !ok {
			return fmt.Errorf("regex value must be a string, got %T", r.Value)
		}
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Errorf("invalid regex %q: %w", s, err)
		}
	case OpIPInCIDR:
		cidrs, ok := stringList(r.Value)
		if !ok || len(cidrs) == 0 {
			return fmt.Errorf("ip_in_cidr value must be a CIDR or a list of CIDRs, got %v", r.Value)
		}
		for _, c := range cidrs {
			if _, _, err := net.ParseCIDR(c); err != nil {
				return fmt.Errorf("invalid CIDR %q: %w", c, err)
			}
		}
	case OpIn, OpNotIn:
		if _, ok := List(r.Value); !ok {
			return fmt.Errorf("%s value must be a list, got %T", r.Operator, r.Value)
		}
	case OpBetweenHours:
		if _, _, err := HourWindow(r.Value); err != nil {
			return err
		}
	}
	return nil
}

func stringList(v any) ([]string, bool) {
	if s, ok := v.(string); ok {
		return []string{s}, true
	}
	items, ok := List(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
