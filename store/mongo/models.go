package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

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
	ID              string                       `grove:"id,pk"           bson:"_id"`
	TenantID        string                       `grove:"tenant_id"       bson:"tenant_id"`
	AppID           string                       `grove:"app_id"          bson:"app_id"`
	Name            string                       `grove:"name"            bson:"name"`
	Description     string                       `grove:"description"     bson:"description"`
	Effect          string                       `grove:"effect"          bson:"effect"`
	Priority        int                          `grove:"priority"        bson:"priority"`
	IsActive        bool                         `grove:"is_active"       bson:"is_active"`
	Version         int                          `grove:"version"         bson:"version"`
	Subject         *policy.SubjectCondition     `grove:"subject"         bson:"subject,omitempty"`
	Resource        policy.ResourceCondition     `grove:"resource"        bson:"resource"`
	Action          policy.ActionCondition       `grove:"action"          bson:"action"`
	Environment     *policy.EnvironmentCondition `grove:"environment"     bson:"environment,omitempty"`
	Metadata        map[string]any               `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt       time.Time                    `grove:"created_at"      bson:"created_at"`
	UpdatedAt       time.Time                    `grove:"updated_at"      bson:"updated_at"`
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
		Subject:     m.Subject,
		Resource:    m.Resource,
		Action:      m.Action,
		Environment: m.Environment,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if p.Subject != nil {
		normalizeRules(p.Subject.Attributes)
	}
	normalizeRules(p.Resource.Attributes)
	if p.Environment != nil {
		normalizeRules(p.Environment.Attributes)
	}
	return p
}

// normalizeRules rewrites decoded rule values into the plain Go shapes
// the evaluator understands.
func normalizeRules(rules []policy.AttributeRule) {
	for i := range rules {
		rules[i].Value = plainValue(rules[i].Value)
	}
}

func plainValue(v any) any {
	switch x := v.(type) {
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plainValue(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = plainValue(item)
		}
		return out
	case int32:
		return int64(x)
	case bson.DateTime:
		return x.Time().UTC()
	default:
		return v
	}
}

// ──────────────────────────────────────────────────
// Decision log model
// ──────────────────────────────────────────────────

type decisionLogModel struct {
	grove.BaseModel `grove:"table:arbiter_decision_logs"`
	ID              string         `grove:"id,pk"            bson:"_id"`
	TenantID        string         `grove:"tenant_id"        bson:"tenant_id"`
	AppID           string         `grove:"app_id"           bson:"app_id"`
	SubjectKind     string         `grove:"subject_kind"     bson:"subject_kind"`
	SubjectID       string         `grove:"subject_id"       bson:"subject_id"`
	Action          string         `grove:"action"           bson:"action"`
	ResourceType    string         `grove:"resource_type"    bson:"resource_type"`
	ResourceID      string         `grove:"resource_id"      bson:"resource_id"`
	Decision        string         `grove:"decision"         bson:"decision"`
	Reason          string         `grove:"reason"           bson:"reason"`
	PolicyID        string         `grove:"policy_id"        bson:"policy_id,omitempty"`
	PolicyName      string         `grove:"policy_name"      bson:"policy_name,omitempty"`
	DeniedByPolicy  bool           `grove:"denied_by_policy" bson:"denied_by_policy"`
	DefaultDeny     bool           `grove:"default_deny"     bson:"default_deny"`
	EvalTimeNs      int64          `grove:"eval_time_ns"     bson:"eval_time_ns"`
	RequestIP       string         `grove:"request_ip"       bson:"request_ip"`
	Metadata        map[string]any `grove:"metadata"         bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"       bson:"created_at"`
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
