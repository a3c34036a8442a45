package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
)

// ──────────────────────────────────────────────────
// Policy model
// ──────────────────────────────────────────────────

type policyModel struct {
	grove.BaseModel `grove:"table:arbiter_policies"`
	ID              string                       `grove:"id,pk"`
	TenantID        string                       `grove:"tenant_id,notnull"`
	AppID           string                       `grove:"app_id,notnull"`
	Name            string                       `grove:"name,notnull"`
	Description     string                       `grove:"description"`
	Effect          string                       `grove:"effect,notnull"`
	Priority        int                          `grove:"priority,notnull"`
	IsActive        bool                         `grove:"is_active,notnull"`
	Version         int                          `grove:"version,notnull"`
	Subject         *policy.SubjectCondition     `grove:"subject,type:jsonb"`
	Resource        policy.ResourceCondition     `grove:"resource,type:jsonb"`
	Action          policy.ActionCondition       `grove:"action,type:jsonb"`
	Environment     *policy.EnvironmentCondition `grove:"environment,type:jsonb"`
	Metadata        map[string]any               `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time                    `grove:"created_at,notnull"`
	UpdatedAt       time.Time                    `grove:"updated_at,notnull"`
}

func policyToModel(p *policy.Policy) *policyModel {
	return &policyModel{
		ID:          p.ID.String(),
		TenantID:    p.TenantID,
		AppID:       p.AppID,
		Name:        p.Name,
		Description: p.Description,
		Effect:      string(p.Effect),
		Priority:    p.Priority,
		IsActive:    p.IsActive,
		Version:     p.Version,
		Subject:     p.Subject,
		Resource:    p.Resource,
		Action:      p.Action,
		Environment: p.Environment,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func policyFromModel(m *policyModel) *policy.Policy {
	pid, _ := id.ParsePolicyID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &policy.Policy{
		ID:          pid,
		TenantID:    m.TenantID,
		AppID:       m.AppID,
		Name:        m.Name,
		Description: m.Description,
		Effect:      policy.Effect(m.Effect),
		Priority:    m.Priority,
		IsActive:    m.IsActive,
		Version:     m.Version,
		Subject:     m.Subject,
		Resource:    m.Resource,
		Action:      m.Action,
		Environment: m.Environment,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Decision log model
// ──────────────────────────────────────────────────

type decisionLogModel struct {
	grove.BaseModel `grove:"table:arbiter_decision_logs"`
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	AppID           string         `grove:"app_id,notnull"`
	SubjectKind     string         `grove:"subject_kind,notnull"`
	SubjectID       string         `grove:"subject_id,notnull"`
	Action          string         `grove:"action,notnull"`
	ResourceType    string         `grove:"resource_type,notnull"`
	ResourceID      string         `grove:"resource_id,notnull"`
	Decision        string         `grove:"decision,notnull"`
	Reason          string         `grove:"reason"`
	PolicyID        string         `grove:"policy_id"`
	PolicyName      string         `grove:"policy_name"`
	DeniedByPolicy  bool           `grove:"denied_by_policy,notnull"`
	DefaultDeny     bool           `grove:"default_deny,notnull"`
	EvalTimeNs      int64          `grove:"eval_time_ns,notnull"`
	RequestIP       string         `grove:"request_ip"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
}

func decisionLogToModel(e *decisionlog.Entry) *decisionLogModel {
	return &decisionLogModel{
		ID:             e.ID.String(),
		TenantID:       e.TenantID,
		AppID:          e.AppID,
		SubjectKind:    e.SubjectKind,
		SubjectID:      e.SubjectID,
		Action:         e.Action,
		ResourceType:   e.ResourceType,
		ResourceID:     e.ResourceID,
		Decision:       e.Decision,
		Reason:         e.Reason,
		PolicyID:       e.PolicyID,
		PolicyName:     e.PolicyName,
		DeniedByPolicy: e.DeniedByPolicy,
		DefaultDeny:    e.DefaultDeny,
		EvalTimeNs:     e.EvalTimeNs,
		RequestIP:      e.RequestIP,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt,
	}
}

func decisionLogFromModel(m *decisionLogModel) *decisionlog.Entry {
	dlid, _ := id.ParseDecisionLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &decisionlog.Entry{
		ID:             dlid,
		TenantID:       m.TenantID,
		AppID:          m.AppID,
		SubjectKind:    m.SubjectKind,
		SubjectID:      m.SubjectID,
		Action:         m.Action,
		ResourceType:   m.ResourceType,
		ResourceID:     m.ResourceID,
		Decision:       m.Decision,
		Reason:         m.Reason,
		PolicyID:       m.PolicyID,
		PolicyName:     m.PolicyName,
		DeniedByPolicy: m.DeniedByPolicy,
		DefaultDeny:    m.DefaultDeny,
		EvalTimeNs:     m.EvalTimeNs,
		RequestIP:      m.RequestIP,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}
