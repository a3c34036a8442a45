package api

import (
	"github.com/xraph/arbiter/policy"
)

// ──────────────────────────────────────────────────
// Decision requests
// ──────────────────────────────────────────────────

// EvaluateRequest is the request body for a policy decision.
type EvaluateRequest struct {
	Subject     SubjectInput   `json:"subject" description:"Requesting principal"`
	Resource    ResourceInput  `json:"resource" description:"Target resource"`
	Action      string         `json:"action" description:"Action identifier"`
	Environment map[string]any `json:"environment,omitempty" description:"Request-time attributes (ip, time, ...). Omit when unknown."`
}

// SubjectInput describes the requesting principal.
type SubjectInput struct {
	Kind       string         `json:"kind" description:"Subject type (user, api_key, service, service_acct)"`
	ID         string         `json:"id" description:"Subject identifier"`
	Roles      []string       `json:"roles,omitempty" description:"Role names held by the subject"`
	Attributes map[string]any `json:"attributes,omitempty" description:"Subject attributes"`
}

// ResourceInput describes the target resource.
type ResourceInput struct {
	Type       string         `json:"type" description:"Resource type"`
	ID         string         `json:"id,omitempty" description:"Resource identifier"`
	Attributes map[string]any `json:"attributes,omitempty" description:"Resource attributes"`
}

// BatchEvaluateRequest contains multiple decision requests.
type BatchEvaluateRequest struct {
	Requests []EvaluateRequest `json:"requests" description:"Decision requests, answered in order"`
}

// ──────────────────────────────────────────────────
// Policy requests
// ──────────────────────────────────────────────────

// CreatePolicyRequest is the body for creating a policy.
type CreatePolicyRequest struct {
	Name        string                       `json:"name" description:"Policy name, unique per tenant"`
	Description string                       `json:"description,omitempty" description:"Human-readable description"`
	Effect      string                       `json:"effect" description:"Policy effect (allow or deny)"`
	Priority    int                          `json:"priority,omitempty" description:"Higher priorities are evaluated first"`
	IsActive    *bool                        `json:"is_active,omitempty" description:"Whether the policy is active (default true)"`
	Subject     *policy.SubjectCondition     `json:"subject,omitempty" description:"Subject condition; omit to match any subject"`
	Resource    policy.ResourceCondition     `json:"resource" description:"Resource condition"`
	Action      policy.ActionCondition       `json:"action" description:"Permitted actions"`
	Environment *policy.EnvironmentCondition `json:"environment,omitempty" description:"Environment condition; omit to match any environment"`
	Metadata    map[string]any               `json:"metadata,omitempty" description:"Custom metadata"`
}

// UpdatePolicyRequest is the body for updating a policy. Omitted fields
// keep their stored value.
type UpdatePolicyRequest struct {
	Name        string                       `json:"name,omitempty" description:"Policy name"`
	Description *string                      `json:"description,omitempty" description:"Description"`
	Effect      string                       `json:"effect,omitempty" description:"Policy effect"`
	Priority    *int                         `json:"priority,omitempty" description:"Priority"`
	IsActive    *bool                        `json:"is_active,omitempty" description:"Active flag"`
	Subject     *policy.SubjectCondition     `json:"subject,omitempty" description:"Subject condition"`
	Resource    *policy.ResourceCondition    `json:"resource,omitempty" description:"Resource condition"`
	Action      *policy.ActionCondition      `json:"action,omitempty" description:"Permitted actions"`
	Environment *policy.EnvironmentCondition `json:"environment,omitempty" description:"Environment condition"`
	Metadata    map[string]any               `json:"metadata,omitempty" description:"Metadata"`
}

// GetPolicyRequest is the path parameter for getting a policy.
type GetPolicyRequest struct {
	PolicyID string `path:"policyId" description:"Policy ID"`
}

// ListPoliciesRequest holds query parameters.
type ListPoliciesRequest struct {
	Effect string `query:"effect" description:"Filter by effect (allow/deny)"`
	Active string `query:"active" description:"Filter by active status (true/false)"`
	Search string `query:"search" description:"Search by name"`
	Limit  int    `query:"limit" description:"Maximum results"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Decision log requests
// ──────────────────────────────────────────────────

// ListDecisionLogsRequest holds query parameters for querying decision logs.
type ListDecisionLogsRequest struct {
	SubjectKind  string `query:"subject_kind" description:"Filter by subject type"`
	SubjectID    string `query:"subject_id" description:"Filter by subject ID"`
	Action       string `query:"action" description:"Filter by action"`
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	ResourceID   string `query:"resource_id" description:"Filter by resource ID"`
	Decision     string `query:"decision" description:"Filter by decision"`
	PolicyID     string `query:"policy_id" description:"Filter by deciding policy"`
	After        string `query:"after" description:"After timestamp (RFC3339)"`
	Before       string `query:"before" description:"Before timestamp (RFC3339)"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}

// GetDecisionLogRequest is the path parameter for getting a decision log.
type GetDecisionLogRequest struct {
	LogID string `path:"logId" description:"Decision log ID"`
}
