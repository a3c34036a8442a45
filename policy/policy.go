// Package policy defines the ABAC Policy entity and its condition grammar.
package policy

import (
	"time"

	"github.com/xraph/arbiter/id"
)

// Effect is the policy outcome, allow or deny.
type Effect string

const (
	// EffectAllow permits matching requests.
	EffectAllow Effect = "allow"

	// EffectDeny blocks matching requests.
	EffectDeny Effect = "deny"
)

// Policy is a named, prioritized authorization rule. Subject and
// Environment are optional: a nil condition matches any subject or
// environment. Resource and Action are required.
type Policy struct {
	ID          id.PolicyID           `json:"id" db:"id"`
	TenantID    string                `json:"tenant_id" db:"tenant_id"`
	AppID       string                `json:"app_id" db:"app_id"`
	Name        string                `json:"name" db:"name" validate:"required,max=255"`
	Description string                `json:"description,omitempty" db:"description"`
	Effect      Effect                `json:"effect" db:"effect" validate:"required,oneof=allow deny"`
	Priority    int                   `json:"priority" db:"priority"`
	IsActive    bool                  `json:"is_active" db:"is_active"`
	Version     int                   `json:"version" db:"version"`
	Subject     *SubjectCondition     `json:"subject,omitempty" db:"-" validate:"omitempty"`
	Resource    ResourceCondition     `json:"resource" db:"-"`
	Action      ActionCondition       `json:"action" db:"-"`
	Environment *EnvironmentCondition `json:"environment,omitempty" db:"-" validate:"omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at" db:"updated_at"`
}

// IsDeny reports whether the policy blocks matching requests.
func (p *Policy) IsDeny() bool { return p.Effect == EffectDeny }

// SubjectCondition restricts which principals a policy applies to.
// Every non-empty list must match and every attribute rule must hold.
type SubjectCondition struct {
	Kinds      []string        `json:"kinds,omitempty"`
	IDs        []string        `json:"ids,omitempty"`
	Roles      []string        `json:"roles,omitempty"`
	Attributes []AttributeRule `json:"attributes,omitempty" validate:"dive"`
}

// ResourceCondition restricts which resources a policy applies to. Types
// and IDs accept glob patterns ("*", "journal:*", "ledger.*").
type ResourceCondition struct {
	Types      []string        `json:"types,omitempty"`
	IDs        []string        `json:"ids,omitempty"`
	Attributes []AttributeRule `json:"attributes,omitempty" validate:"dive"`
}

// IsEmpty reports whether the condition constrains nothing.
func (c ResourceCondition) IsEmpty() bool {
	return len(c.Types) == 0 && len(c.IDs) == 0 && len(c.Attributes) == 0
}

// ActionCondition holds the ordered list of permitted action identifiers.
type ActionCondition struct {
	Actions []string `json:"actions" validate:"required,min=1,dive,required"`
}

// EnvironmentCondition holds predicates over request-time attributes such
// as the client IP or the evaluation time.
type EnvironmentCondition struct {
	Attributes []AttributeRule `json:"attributes" validate:"required,min=1,dive"`
}

// AttributeRule is a single predicate over one attribute.
type AttributeRule struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ListFilter contains filters for listing policies.
type ListFilter struct {
	TenantID string `json:"tenant_id,omitempty"`
	Effect   Effect `json:"effect,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
