package sqlite

import (
	"encoding/json"
	"fmt"
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
	ID              string    `grove:"id,pk"`
	TenantID        string    `grove:"tenant_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	Name            string    `grove:"name,notnull"`
	Description     string    `grove:"description"`
	Effect          string    `grove:"effect,notnull"`
	Priority        int       `grove:"priority,notnull"`
	IsActive        bool      `grove:"is_active,notnull"`
	Version         int       `grove:"version,notnull"`
	Subject         string    `grove:"subject"`     // JSON text, "null" when unset
	Resource        string    `grove:"resource"`    // JSON text
	Action          string    `grove:"action"`      // JSON text
	Environment     string    `grove:"environment"` // JSON text, "null" when unset
	Metadata        string    `grove:"metadata"`    // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func policyToModel(p *policy.Policy) (*policyModel, error) {
	subject, err := json.Marshal(p.Subject)
	if err != nil {
		return nil, fmt.Errorf("marshal policy subject: %w", err)
	}
	resource, err := json.Marshal(p.Resource)
	if err != nil {
		return nil, fmt.Errorf("marshal policy resource: %w", err)
	}
	action, err := json.Marshal(p.Action)
	if err != nil {
		return nil, fmt.Errorf("marshal policy action: %w", err)
	}
	environment, err := json.Marshal(p.Environment)
	if err != nil {
		return nil, fmt.Errorf("marshal policy environment: %w", err)
	}
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal policy metadata: %w", err)
	}
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
		Subject:     string(subject),
		Resource:    string(resource),
		Action:      string(action),
		Environment: string(environment),
		Metadata:    string(metadata),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func policyFromModel(m *policyModel) (*policy.Policy, error) {
	pid, _ := id.ParsePolicyID(m.ID) //nolint:errcheck // stored IDs are always valid

	p := &policy.Policy{
		ID:          pid,
		TenantID:    m.TenantID,
		AppID:       m.AppID,
		Name:        m.Name,
		Description: m.Description,
		Effect:      policy.Effect(m.Effect),
		Priority:    m.Priority,
		IsActive:    m.IsActive,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Subject != "" {
		if err := json.Unmarshal([]byte(m.Subject), &p.Subject); err != nil {
			return nil, fmt.Errorf("unmarshal policy subject: %w", err)
		}
	}
	if m.Resource != "" {
		if err := json.Unmarshal([]byte(m.Resource), &p.Resource); err != nil {
			return nil, fmt.Errorf("unmarshal policy resource: %w", err)
		}
	}
	if m.Action != "" {
		if err := json.Unmarshal([]byte(m.Action), &p.Action); err != nil {
			return nil, fmt.Errorf("unmarshal policy action: %w", err)
		}
	}
	if m.Environment != "" {
		if err := json.Unmarshal([]byte(m.Environment), &p.Environment); err != nil {
			return nil, fmt.Errorf("unmarshal policy environment: %w", err)
		}
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal policy metadata: %w", err)
		}
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// Decision log model
// ──────────────────────────────────────────────────

type decisionLogModel struct {
	grove.BaseModel `grove:"table:arbiter_decision_logs"`
	ID              string    `grove:"id,pk"`
	TenantID        string    `grove:"tenant_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	SubjectKind     string    `grove:"subject_kind,notnull"`
	SubjectID       string    `grove:"subject_id,notnull"`
	Action          string    `grove:"action,notnull"`
	ResourceType    string    `grove:"resource_type,notnull"`
	ResourceID      string    `grove:"resource_id,notnull"`
	Decision        string    `grove:"decision,notnull"`
	Reason          string    `grove:"reason"`
	PolicyID        string    `grove:"policy_id"`
	PolicyName      string    `grove:"policy_name"`
	DeniedByPolicy  bool      `grove:"denied_by_policy,notnull"`
	DefaultDeny     bool      `grove:"default_deny,notnull"`
	EvalTimeNs      int64     `grove:"eval_time_ns,notnull"`
	RequestIP       string    `grove:"request_ip"`
	Metadata        string    `grove:"metadata"` // JSON text
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func decisionLogToModel(e *decisionlog.Entry) (*decisionLogModel, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal decision log metadata: %w", err)
	}
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
		Metadata:       string(metadata),
		CreatedAt:      e.CreatedAt,
	}, nil
}

func decisionLogFromModel(m *decisionLogModel) (*decisionlog.Entry, error) {
	dlid, _ := id.ParseDecisionLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	var metadata map[string]any
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal decision log metadata: %w", err)
		}
	}
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
		Metadata:       metadata,
		CreatedAt:      m.CreatedAt,
	}, nil
}
