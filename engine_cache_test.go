package arbiter_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/cache"
	"github.com/xraph/arbiter/policy"
	"github.com/xraph/arbiter/store/memory"
)

func newCachedEngine(t *testing.T) (*arbiter.Engine, *cache.Memory) {
	t.Helper()
	c := cache.NewMemory(cache.WithTTL(time.Minute))
	eng, err := arbiter.NewEngine(arbiter.WithStore(memory.New()), arbiter.WithCache(c))
	if err != nil {
		t.Fatal(err)
	}
	return eng, c
}

func createPolicy(t *testing.T, eng *arbiter.Engine, ctx context.Context, p *policy.Policy) {
	t.Helper()
	if err := eng.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("CreatePolicy(%s): %v", p.Name, err)
	}
}

func officeRead() *policy.Policy {
	return &policy.Policy{
		Name: "office-read", Effect: policy.EffectAllow, Priority: 10, IsActive: true,
		Resource: policy.ResourceCondition{Types: []string{"journal"}},
		Action:   policy.ActionCondition{Actions: []string{"read"}},
		Environment: &policy.EnvironmentCondition{Attributes: []policy.AttributeRule{
			{Field: "ip", Operator: policy.OpIPInCIDR, Value: "10.0.0.0/8"},
		}},
	}
}

// requestAt mirrors what the HTTP middleware builds: client ip plus a
// nanosecond-precision request time.
func requestAt(at time.Time) *arbiter.EvaluationContext {
	return &arbiter.EvaluationContext{
		Subject:  arbiter.Subject{Kind: arbiter.SubjectUser, ID: "u1"},
		Resource: arbiter.Resource{Type: "journal", ID: "je-1"},
		Action:   "read",
		Environment: &arbiter.Environment{Attributes: map[string]any{
			"ip":   "10.1.2.3",
			"time": at,
		}},
	}
}

func TestEngineCacheIgnoresUnreadRequestTime(t *testing.T) {
	ctx := arbiter.WithTenant(context.Background(), "app1", "t1")
	eng, c := newCachedEngine(t)
	createPolicy(t, eng, ctx, officeRead())

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		result, err := eng.Evaluate(ctx, requestAt(at.Add(time.Duration(i)*time.Microsecond)))
		if err != nil {
			t.Fatal(err)
		}
		if !result.Allowed() {
			t.Fatalf("request %d: expected allow, got %+v", i, result)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("expected requests a microsecond apart to share one entry, got %d", c.Len())
	}
}

func TestEngineCacheSkipsTimeDependentDecisions(t *testing.T) {
	ctx := arbiter.WithTenant(context.Background(), "app1", "t1")
	eng, c := newCachedEngine(t)
	p := officeRead()
	p.Environment.Attributes = append(p.Environment.Attributes,
		policy.AttributeRule{Field: "time", Operator: policy.OpBetweenHours, Value: []int{8, 18}})
	createPolicy(t, eng, ctx, p)

	morning := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{morning, morning.Add(time.Microsecond)} {
		result, err := eng.Evaluate(ctx, requestAt(at))
		if err != nil || !result.Allowed() {
			t.Fatalf("expected allow, got %+v, %v", result, err)
		}
	}
	if c.Len() != 0 {
		t.Fatalf("decisions that read the time must not be cached, got %d entries", c.Len())
	}

	evening := morning.Add(11 * time.Hour)
	result, err := eng.Evaluate(ctx, requestAt(evening))
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed() {
		t.Fatal("an evening request must not reuse the morning allow")
	}
}

func TestEngineCacheReindexesAfterPolicyWrite(t *testing.T) {
	ctx := arbiter.WithTenant(context.Background(), "app1", "t1")
	eng, c := newCachedEngine(t)
	createPolicy(t, eng, ctx, officeRead())

	morning := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if _, err := eng.Evaluate(ctx, requestAt(morning)); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", c.Len())
	}

	createPolicy(t, eng, ctx, &policy.Policy{
		Name: "night-freeze", Effect: policy.EffectDeny, Priority: 100, IsActive: true,
		Resource: policy.ResourceCondition{Types: []string{"journal"}},
		Action:   policy.ActionCondition{Actions: []string{"*"}},
		Environment: &policy.EnvironmentCondition{Attributes: []policy.AttributeRule{
			{Field: "time", Operator: policy.OpBetweenHours, Value: []int{20, 6}},
		}},
	})

	night := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	result, err := eng.Evaluate(ctx, requestAt(night))
	if err != nil {
		t.Fatal(err)
	}
	if !result.DeniedByPolicy {
		t.Fatalf("expected the night freeze to apply, got %+v", result)
	}

	// The night deny must not be served for a morning request.
	result, err = eng.Evaluate(ctx, requestAt(morning))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed() {
		t.Fatalf("expected morning allow after the night deny, got %+v", result)
	}
}

func TestEngineConcurrentEvaluateSharedCache(t *testing.T) {
	ctx := arbiter.WithTenant(context.Background(), "app1", "t1")
	eng, _ := newCachedEngine(t)
	createPolicy(t, eng, ctx, officeRead())
	createPolicy(t, eng, ctx, &policy.Policy{
		Name: "no-deletes", Effect: policy.EffectDeny, Priority: 50, IsActive: true,
		Resource: policy.ResourceCondition{Types: []string{"journal"}},
		Action:   policy.ActionCondition{Actions: []string{"delete"}},
	})

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := range 64 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ec := requestAt(at.Add(time.Duration(i) * time.Microsecond))
			ec.Resource.ID = fmt.Sprintf("je-%d", i%4)
			if i%2 == 1 {
				ec.Action = "delete"
			}
			result, err := eng.Evaluate(ctx, ec)
			switch {
			case err != nil:
				errs <- err
			case i%2 == 0 && result.Reason != "Allowed by policy: office-read":
				errs <- fmt.Errorf("request %d: unexpected %q", i, result.Reason)
			case i%2 == 1 && result.Reason != "Denied by policy: no-deletes":
				errs <- fmt.Errorf("request %d: unexpected %q", i, result.Reason)
			case len(result.MatchedPolicies) != 1:
				errs <- fmt.Errorf("request %d: expected one matched policy", i)
			default:
				result.MatchedPolicies[0] = nil
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
