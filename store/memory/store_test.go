package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
	"github.com/xraph/arbiter/store"
)

// Compile-time check that *Store implements store.Store.
var _ store.Store = (*Store)(nil)

func newPolicy(tenant, name string, priority int, active bool) *policy.Policy {
	return &policy.Policy{
		ID:       id.NewPolicyID(),
		TenantID: tenant,
		Name:     name,
		Effect:   policy.EffectAllow,
		Priority: priority,
		IsActive: active,
		Resource: policy.ResourceCondition{Types: []string{"journal"}},
		Action:   policy.ActionCondition{Actions: []string{"read"}},
	}
}

func TestPolicyCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := newPolicy("t1", "office-network", 10, true)
	p.Effect = policy.EffectDeny
	p.Environment = &policy.EnvironmentCondition{
		Attributes: []policy.AttributeRule{
			{Field: "ip", Operator: policy.OpIPInCIDR, Value: "10.0.0.0/8"},
		},
	}

	if err := s.CreatePolicy(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPolicy(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "office-network" {
		t.Fatal("mismatch")
	}
	if got.Environment == nil || len(got.Environment.Attributes) != 1 {
		t.Fatal("environment condition not stored")
	}

	// GetPolicyByName
	got, err = s.GetPolicyByName(ctx, "t1", "office-network")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID {
		t.Fatal("name lookup mismatch")
	}

	// Duplicate name within a tenant.
	dup := newPolicy("t1", "office-network", 1, true)
	if err := s.CreatePolicy(ctx, dup); !errors.Is(err, policy.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// Update
	p.Version = 2
	if err := s.UpdatePolicy(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPolicy(ctx, p.ID)
	if got.Version != 2 {
		t.Fatal("version not updated")
	}

	// Delete
	if err := s.DeletePolicy(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	_, err = s.GetPolicy(ctx, p.ID)
	if !errors.Is(err, policy.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeletePolicy(ctx, p.ID); !errors.Is(err, policy.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPolicyCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := newPolicy("t1", "p", 1, true)
	p.Subject = &policy.SubjectCondition{Roles: []string{"accountant"}}
	if err := s.CreatePolicy(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.Action.Actions[0] = "delete"
	p.Subject.Roles[0] = "admin"

	got, _ := s.GetPolicy(ctx, p.ID)
	if got.Action.Actions[0] != "read" {
		t.Errorf("stored actions mutated through caller slice: %v", got.Action.Actions)
	}
	if got.Subject.Roles[0] != "accountant" {
		t.Errorf("stored roles mutated through caller slice: %v", got.Subject.Roles)
	}
}

func TestListActivePolicies(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Now()
	first := newPolicy("t1", "first", 1, true)
	first.CreatedAt = now
	second := newPolicy("t1", "second", 5, true)
	second.CreatedAt = now.Add(time.Second)
	inactive := newPolicy("t1", "inactive", 1, false)
	other := newPolicy("t2", "other", 1, true)

	for _, p := range []*policy.Policy{second, inactive, other, first} {
		if err := s.CreatePolicy(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	active, err := s.ListActivePolicies(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active policies, got %d", len(active))
	}
	if active[0].Name != "first" || active[1].Name != "second" {
		t.Errorf("expected creation order, got %s, %s", active[0].Name, active[1].Name)
	}
}

func TestListPoliciesFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, name := range []string{"low", "mid", "high"} {
		if err := s.CreatePolicy(ctx, newPolicy("t1", name, i*10, true)); err != nil {
			t.Fatal(err)
		}
	}
	deny := newPolicy("t1", "deny-all", 100, false)
	deny.Effect = policy.EffectDeny
	_ = s.CreatePolicy(ctx, deny)

	all, _ := s.ListPolicies(ctx, &policy.ListFilter{TenantID: "t1"})
	if len(all) != 4 || all[0].Name != "deny-all" || all[3].Name != "low" {
		t.Fatalf("expected priority-descending order, got %d policies", len(all))
	}

	active := true
	list, _ := s.ListPolicies(ctx, &policy.ListFilter{TenantID: "t1", IsActive: &active, Limit: 2})
	if len(list) != 2 || list[0].Name != "high" {
		t.Fatalf("expected [high mid], got %d policies", len(list))
	}

	denies, _ := s.ListPolicies(ctx, &policy.ListFilter{Effect: policy.EffectDeny})
	if len(denies) != 1 {
		t.Fatalf("expected 1 deny policy, got %d", len(denies))
	}

	count, _ := s.CountPolicies(ctx, &policy.ListFilter{TenantID: "t1", Limit: 1})
	if count != 4 {
		t.Fatalf("count should ignore pagination, got %d", count)
	}

	page, _ := s.ListPolicies(ctx, &policy.ListFilter{Search: "MID"})
	if len(page) != 1 {
		t.Fatalf("expected search to match 1, got %d", len(page))
	}

	empty, _ := s.ListPolicies(ctx, &policy.ListFilter{Offset: 10})
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestDecisionLogCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	e := &decisionlog.Entry{
		ID:           id.NewDecisionLogID(),
		TenantID:     "t1",
		SubjectKind:  "user",
		SubjectID:    "u1",
		Action:       "read",
		ResourceType: "journal",
		ResourceID:   "je-1",
		Decision:     "allow",
		CreatedAt:    time.Now(),
	}

	if err := s.CreateDecisionLog(ctx, e); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDecisionLog(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != "allow" {
		t.Fatal("mismatch")
	}

	if _, err := s.GetDecisionLog(ctx, id.NewDecisionLogID()); !errors.Is(err, decisionlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	logs, _ := s.ListDecisionLogs(ctx, &decisionlog.QueryFilter{TenantID: "t1", Decision: "allow"})
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	count, _ := s.CountDecisionLogs(ctx, &decisionlog.QueryFilter{Decision: "deny"})
	if count != 0 {
		t.Fatalf("expected 0 deny logs, got %d", count)
	}

	// Purge
	purged, _ := s.PurgeDecisionLogs(ctx, time.Now().Add(time.Hour))
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
}

func TestDeleteByTenant(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.CreatePolicy(ctx, newPolicy("t1", "pol1", 1, true))
	_ = s.CreatePolicy(ctx, newPolicy("t2", "pol2", 1, true))
	_ = s.CreateDecisionLog(ctx, &decisionlog.Entry{ID: id.NewDecisionLogID(), TenantID: "t1", CreatedAt: time.Now()})

	_ = s.DeletePoliciesByTenant(ctx, "t1")
	_ = s.DeleteDecisionLogsByTenant(ctx, "t1")

	pols, _ := s.ListPolicies(ctx, &policy.ListFilter{TenantID: "t1"})
	if len(pols) != 0 {
		t.Fatal("t1 policies not deleted")
	}
	pols, _ = s.ListPolicies(ctx, &policy.ListFilter{TenantID: "t2"})
	if len(pols) != 1 {
		t.Fatal("t2 policies should remain")
	}
	logs, _ := s.ListDecisionLogs(ctx, &decisionlog.QueryFilter{TenantID: "t1"})
	if len(logs) != 0 {
		t.Fatal("t1 decision logs not deleted")
	}
}

func TestMigratePingClose(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
