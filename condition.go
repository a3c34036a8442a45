package arbiter

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/arbiter/policy"
)

// checkRules evaluates rules in order and returns the reason the first
// failing rule gives, or "" when every rule holds.
func checkRules(scope string, rules []policy.AttributeRule, get func(field string) (any, bool)) string {
	for _, r := range rules {
		actual, present := get(r.Field)
		ok, err := evaluateRule(r.Operator, actual, present, r.Value)
		if err != nil {
			return fmt.Sprintf("invalid condition: %s attribute %s: %v", scope, r.Field, err)
		}
		if !ok {
			want := string(r.Operator)
			if r.Value != nil {
				want += " " + formatValue(r.Value, true)
			}
			return fmt.Sprintf("%s attribute %s: expected %s, got %s", scope, r.Field, want, formatValue(actual, present))
		}
	}
	return ""
}

// lookup resolves field in attrs. A dotted field that is not a literal
// key walks nested maps ("address.country").
func lookup(attrs map[string]any, field string) (any, bool) {
	if attrs == nil {
		return nil, false
	}
	if v, ok := attrs[field]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(field, ".")
	if !found {
		return nil, false
	}
	nested, ok := attrs[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}

func evaluateRule(op policy.Operator, actual any, present bool, expected any) (bool, error) {
	switch op {
	case policy.OpExists:
		return present && actual != nil, nil
	case policy.OpNotExists:
		return !present || actual == nil, nil
	}
	if (!present || actual == nil) && op.Known() {
		// Every remaining operator needs a value; neq and not_in still
		// hold for an absent or nil attribute.
		return op == policy.OpNotEquals || op == policy.OpNotIn, nil
	}

	// Equality and membership compare string forms, so 1 equals "1".
	switch op {
	case policy.OpEquals:
		return fmt.Sprint(actual) == fmt.Sprint(expected), nil
	case policy.OpNotEquals:
		return fmt.Sprint(actual) != fmt.Sprint(expected), nil
	case policy.OpIn:
		return inSlice(actual, expected), nil
	case policy.OpNotIn:
		return !inSlice(actual, expected), nil
	case policy.OpContains:
		return contains(actual, expected), nil
	case policy.OpStartsWith:
		return strings.HasPrefix(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case policy.OpEndsWith:
		return strings.HasSuffix(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case policy.OpGreaterThan:
		return compareNumbers(actual, expected, func(c int) bool { return c > 0 })
	case policy.OpLessThan:
		return compareNumbers(actual, expected, func(c int) bool { return c < 0 })
	case policy.OpGTE:
		return compareNumbers(actual, expected, func(c int) bool { return c >= 0 })
	case policy.OpLTE:
		return compareNumbers(actual, expected, func(c int) bool { return c <= 0 })
	case policy.OpIPInCIDR:
		return ipInCIDR(fmt.Sprint(actual), expected)
	case policy.OpTimeAfter:
		return timeCompare(actual, expected, true), nil
	case policy.OpTimeBefore:
		return timeCompare(actual, expected, false), nil
	case policy.OpBetweenHours:
		return betweenHours(actual, expected)
	case policy.OpRegex:
		re, err := regexp.Compile(fmt.Sprint(expected))
		if err != nil {
			return false, fmt.Errorf("%w: invalid regex %q: %w", ErrInvalidCondition, expected, err)
		}
		return re.MatchString(fmt.Sprint(actual)), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, op)
	}
}

func inSlice(actual, expected any) bool {
	items, ok := policy.List(expected)
	if !ok {
		return false
	}
	s := fmt.Sprint(actual)
	for _, item := range items {
		if fmt.Sprint(item) == s {
			return true
		}
	}
	return false
}

// contains checks list membership when actual is a list, and substring
// containment otherwise.
func contains(actual, expected any) bool {
	if items, ok := policy.List(actual); ok {
		want := fmt.Sprint(expected)
		for _, item := range items {
			if fmt.Sprint(item) == want {
				return true
			}
		}
		return false
	}
	return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected))
}

func compareNumbers(a, b any, pred func(int) bool) (bool, error) {
	fa, ok := toFloat64(a)
	if !ok {
		return false, nil
	}
	fb, ok := toFloat64(b)
	if !ok {
		return false, fmt.Errorf("%w: %v is not a number", ErrInvalidCondition, b)
	}
	switch {
	case fa < fb:
		return pred(-1), nil
	case fa > fb:
		return pred(1), nil
	}
	return pred(0), nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func ipInCIDR(ipStr string, cidrVal any) (bool, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false, nil
	}

	var cidrs []string
	if s, ok := cidrVal.(string); ok {
		cidrs = []string{s}
	} else if items, ok := policy.List(cidrVal); ok {
		for _, item := range items {
			cidrs = append(cidrs, fmt.Sprint(item))
		}
	} else {
		return false, fmt.Errorf("%w: ip_in_cidr expects a CIDR or list, got %T", ErrInvalidCondition, cidrVal)
	}

	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return false, fmt.Errorf("%w: invalid CIDR %q", ErrInvalidCondition, cidr)
		}
		if network.Contains(ip) {
			return true, nil
		}
	}
	return false, nil
}

func timeCompare(actual, expected any, after bool) bool {
	at, ok := parseTime(actual)
	if !ok {
		return false
	}
	et, ok := parseTime(expected)
	if !ok {
		return false
	}
	if after {
		return at.After(et)
	}
	return at.Before(et)
}

// betweenHours reports whether actual falls in the UTC hour window
// [start, end). A window with start > end wraps midnight.
func betweenHours(actual, expected any) (bool, error) {
	start, end, err := policy.HourWindow(expected)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}
	t, ok := parseTime(actual)
	if !ok {
		return false, nil
	}
	h := t.UTC().Hour()
	if start <= end {
		return h >= start && h < end, nil
	}
	return h >= start || h < end, nil
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func formatValue(v any, present bool) string {
	if !present {
		return "<missing>"
	}
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return fmt.Sprintf("%q", x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	if items, ok := policy.List(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return formatList(parts)
	}
	return fmt.Sprint(v)
}
