package policy

import (
	"fmt"
)

// Operator is a comparison operator for attribute rules.
type Operator string

const (
	// OpEquals checks for equality.
	OpEquals Operator = "eq"

	// OpNotEquals checks for inequality.
	OpNotEquals Operator = "neq"

	// OpIn checks if a value is in a set.
	OpIn Operator = "in"

	// OpNotIn checks if a value is not in a set.
	OpNotIn Operator = "not_in"

	// OpContains checks if a string contains a substring.
	OpContains Operator = "contains"

	// OpStartsWith checks if a string starts with a prefix.
	OpStartsWith Operator = "starts_with"

	// OpEndsWith checks if a string ends with a suffix.
	OpEndsWith Operator = "ends_with"

	// OpGreaterThan checks if a value is greater than another.
	OpGreaterThan Operator = "gt"

	// OpLessThan checks if a value is less than another.
	OpLessThan Operator = "lt"

	// OpGTE checks if a value is greater than or equal to another.
	OpGTE Operator = "gte"

	// OpLTE checks if a value is less than or equal to another.
	OpLTE Operator = "lte"

	// OpExists checks if a field is present.
	OpExists Operator = "exists"

	// OpNotExists checks if a field is absent.
	OpNotExists Operator = "not_exists"

	// OpIPInCIDR checks if an IP address falls within a CIDR range.
	OpIPInCIDR Operator = "ip_in_cidr"

	// OpTimeAfter checks if a time is after a threshold.
	OpTimeAfter Operator = "time_after"

	// OpTimeBefore checks if a time is before a threshold.
	OpTimeBefore Operator = "time_before"

	// OpRegex checks if a value matches a regular expression.
	OpRegex Operator = "regex"

	// OpBetweenHours checks if a time falls inside a [start, end) UTC hour
	// window. The window wraps midnight when start > end.
	OpBetweenHours Operator = "between_hours"
)

var knownOperators = map[Operator]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpIn: {}, OpNotIn: {},
	OpContains: {}, OpStartsWith: {}, OpEndsWith: {},
	OpGreaterThan: {}, OpLessThan: {}, OpGTE: {}, OpLTE: {},
	OpExists: {}, OpNotExists: {}, OpIPInCIDR: {},
	OpTimeAfter: {}, OpTimeBefore: {}, OpRegex: {}, OpBetweenHours: {},
}

// Known reports whether op is a supported operator.
func (op Operator) Known() bool {
	_, ok := knownOperators[op]
	return ok
}

// HourWindow decodes a between_hours value: a two element list of hours
// in [0, 24].
func HourWindow(v any) (start, end int, err error) {
	items, ok := List(v)
	if !ok || len(items) != 2 {
		return 0, 0, fmt.Errorf("between_hours expects [start, end], got %v", v)
	}
	bounds := [2]int{}
	for i, item := range items {
		var h int
		switch n := item.(type) {
		case int:
			h = n
		case int64:
			h = int(n)
		case float64:
			h = int(n)
			if float64(h) != n {
				return 0, 0, fmt.Errorf("between_hours bound %v is not a whole hour", n)
			}
		default:
			return 0, 0, fmt.Errorf("between_hours bound %v is not a number", item)
		}
		if h < 0 || h > 24 {
			return 0, 0, fmt.Errorf("between_hours bound %d out of range", h)
		}
		bounds[i] = h
	}
	return bounds[0], bounds[1], nil
}

// List normalizes list-shaped rule values decoded from JSON, YAML or Go
// literals.
func List(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
