package arbiter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xraph/arbiter/policy"
)

// SubjectMatcher decides whether a subject satisfies a subject condition.
// MismatchReason returns "" when the subject matches.
type SubjectMatcher interface {
	Matches(cond policy.SubjectCondition, s Subject) bool
	MismatchReason(cond policy.SubjectCondition, s Subject) string
}

// ResourceMatcher decides whether a resource satisfies a resource condition.
type ResourceMatcher interface {
	Matches(cond policy.ResourceCondition, r Resource) bool
	MismatchReason(cond policy.ResourceCondition, r Resource) string
}

// ActionMatcher decides whether an action is permitted by an action
// condition. The evaluator builds the mismatch reason itself.
type ActionMatcher interface {
	Matches(cond policy.ActionCondition, action string) bool
}

// EnvironmentMatcher decides whether environment attributes satisfy an
// environment condition.
type EnvironmentMatcher interface {
	Matches(cond policy.EnvironmentCondition, env Environment) bool
	MismatchReason(cond policy.EnvironmentCondition, env Environment) string
}

// Default matchers evaluate the attribute rule grammar in package policy.
// They never fail: a rule that cannot be evaluated is a mismatch whose
// reason starts with "invalid condition".
var (
	_ SubjectMatcher     = subjectMatcher{}
	_ ResourceMatcher    = resourceMatcher{}
	_ ActionMatcher      = actionMatcher{}
	_ EnvironmentMatcher = environmentMatcher{}
)

// DefaultSubjectMatcher matches kinds and ids by membership, roles by
// intersection, and attribute rules against Subject.Attributes plus the
// pseudo-fields "kind" and "id".
func DefaultSubjectMatcher() SubjectMatcher { return subjectMatcher{} }

// DefaultResourceMatcher matches types and ids with glob patterns and
// attribute rules against Resource.Attributes plus "type" and "id".
func DefaultResourceMatcher() ResourceMatcher { return resourceMatcher{} }

// DefaultActionMatcher matches the action against the allowed list with
// glob patterns.
func DefaultActionMatcher() ActionMatcher { return actionMatcher{} }

// DefaultEnvironmentMatcher evaluates attribute rules against
// Environment.Attributes.
func DefaultEnvironmentMatcher() EnvironmentMatcher { return environmentMatcher{} }

// ──────────────────────────────────────────────────
// Subject
// ──────────────────────────────────────────────────

type subjectMatcher struct{}

func (m subjectMatcher) Matches(cond policy.SubjectCondition, s Subject) bool {
	return m.MismatchReason(cond, s) == ""
}

func (subjectMatcher) MismatchReason(cond policy.SubjectCondition, s Subject) string {
	if len(cond.Kinds) > 0 && !slices.Contains(cond.Kinds, string(s.Kind)) {
		return fmt.Sprintf("subject kind %q not in %s", s.Kind, formatList(cond.Kinds))
	}
	if len(cond.IDs) > 0 && !matchAnyGlob(cond.IDs, s.ID) {
		return fmt.Sprintf("subject id %q not in %s", s.ID, formatList(cond.IDs))
	}
	if len(cond.Roles) > 0 && !slices.ContainsFunc(s.Roles, func(r string) bool { return slices.Contains(cond.Roles, r) }) {
		return fmt.Sprintf("subject roles %s do not include any of %s", formatList(s.Roles), formatList(cond.Roles))
	}
	return checkRules("subject", cond.Attributes, func(field string) (any, bool) {
		switch field {
		case "kind":
			return string(s.Kind), true
		case "id":
			return s.ID, true
		}
		return lookup(s.Attributes, field)
	})
}

// ──────────────────────────────────────────────────
// Resource
// ──────────────────────────────────────────────────

type resourceMatcher struct{}

func (m resourceMatcher) Matches(cond policy.ResourceCondition, r Resource) bool {
	return m.MismatchReason(cond, r) == ""
}

func (resourceMatcher) MismatchReason(cond policy.ResourceCondition, r Resource) string {
	if len(cond.Types) > 0 && !matchAnyGlob(cond.Types, r.Type) {
		return fmt.Sprintf("resource type %q not in %s", r.Type, formatList(cond.Types))
	}
	if len(cond.IDs) > 0 && !matchAnyGlob(cond.IDs, r.ID) && !matchAnyGlob(cond.IDs, r.Type+":"+r.ID) {
		return fmt.Sprintf("resource id %q not in %s", r.ID, formatList(cond.IDs))
	}
	return checkRules("resource", cond.Attributes, func(field string) (any, bool) {
		switch field {
		case "type":
			return r.Type, true
		case "id":
			return r.ID, true
		}
		return lookup(r.Attributes, field)
	})
}

// ──────────────────────────────────────────────────
// Action
// ──────────────────────────────────────────────────

type actionMatcher struct{}

func (actionMatcher) Matches(cond policy.ActionCondition, action string) bool {
	return matchAnyGlob(cond.Actions, action)
}

// ──────────────────────────────────────────────────
// Environment
// ──────────────────────────────────────────────────

type environmentMatcher struct{}

func (m environmentMatcher) Matches(cond policy.EnvironmentCondition, env Environment) bool {
	return m.MismatchReason(cond, env) == ""
}

func (environmentMatcher) MismatchReason(cond policy.EnvironmentCondition, env Environment) string {
	return checkRules("environment", cond.Attributes, func(field string) (any, bool) {
		return lookup(env.Attributes, field)
	})
}

// ──────────────────────────────────────────────────
// Glob
// ──────────────────────────────────────────────────

// matchGlob checks if a pattern matches a value with simple glob support.
// Supports a bare "*" and a trailing '*' ("journal:*", "ledger.*", "post*").
func matchGlob(pattern, value string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return false
}

func matchAnyGlob(patterns []string, value string) bool {
	for _, p := range patterns {
		if matchGlob(p, value) {
			return true
		}
	}
	return false
}

func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}
