package extension

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/store/memory"
)

const seedPolicies = `
policies:
  - name: read-journals
    effect: allow
    priority: 10
    resource: {types: [journal]}
    action: {actions: [read]}
  - name: no-deletes
    effect: deny
    priority: 50
    resource: {types: [journal]}
    action: {actions: [delete]}
`

func writePolicies(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(seedPolicies), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildRequiresStore(t *testing.T) {
	if err := New().build(); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	e := New(WithStore(memory.New()), WithPolicyFile(writePolicies(t), "app1", "t1"))
	if err := e.build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := context.Background()
	n, err := e.seed(ctx)
	if err != nil || n != 2 {
		t.Fatalf("first seed = %d, %v", n, err)
	}
	n, err = e.seed(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second seed = %d, %v", n, err)
	}
}

func TestStartSeedsAndAudits(t *testing.T) {
	s := memory.New()
	cfg := DefaultConfig()
	cfg.Audit = true
	cfg.CacheTTL = time.Minute
	e := New(WithStore(s), WithConfig(cfg), WithPolicyFile(writePolicies(t), "app1", "t1"))
	if err := e.build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop(ctx) }()

	tctx := arbiter.WithTenant(ctx, "app1", "t1")
	denied, err := e.Engine().WouldDeny(tctx, &arbiter.EvaluationContext{
		Subject:  arbiter.Subject{Kind: arbiter.SubjectUser, ID: "u1"},
		Resource: arbiter.Resource{Type: "journal", ID: "je-1"},
		Action:   "delete",
	})
	if err != nil || !denied {
		t.Fatalf("WouldDeny = %v, %v", denied, err)
	}

	result, err := e.Engine().Evaluate(tctx, &arbiter.EvaluationContext{
		Subject:  arbiter.Subject{Kind: arbiter.SubjectUser, ID: "u1"},
		Resource: arbiter.Resource{Type: "journal", ID: "je-1"},
		Action:   "read",
	})
	if err != nil || !result.Allowed() {
		t.Fatalf("Evaluate = %+v, %v", result, err)
	}

	n, err := s.CountDecisionLogs(ctx, &decisionlog.QueryFilter{TenantID: "t1"})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 audited decision, got %d, %v", n, err)
	}
	if err := e.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
