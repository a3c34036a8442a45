// Package memory provides an in-memory implementation of the Arbiter
// composite store. It is intended for testing, development and the
// offline CLI.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/arbiter/decisionlog"
	"github.com/xraph/arbiter/id"
	"github.com/xraph/arbiter/policy"
)

// Compile-time interface checks.
var (
	_ policy.Store      = (*Store)(nil)
	_ decisionlog.Store = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Arbiter entities.
type Store struct {
	mu sync.RWMutex

	policies     map[string]*policy.Policy
	decisionLogs map[string]*decisionlog.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		policies:     make(map[string]*policy.Policy),
		decisionLogs: make(map[string]*decisionlog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Policy Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePolicy(_ context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.policies {
		if existing.TenantID == p.TenantID && existing.Name == p.Name {
			return fmt.Errorf("policy %q: %w", p.Name, policy.ErrDuplicateName)
		}
	}
	s.policies[p.ID.String()] = copyPolicy(p)
	return nil
}

func (s *Store) GetPolicy(_ context.Context, polID id.PolicyID) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[polID.String()]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", polID, policy.ErrNotFound)
	}
	return copyPolicy(p), nil
}

func (s *Store) GetPolicyByName(_ context.Context, tenantID, name string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.TenantID == tenantID && p.Name == name {
			return copyPolicy(p), nil
		}
	}
	return nil, fmt.Errorf("policy %q: %w", name, policy.ErrNotFound)
}

func (s *Store) UpdatePolicy(_ context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID.String()]; !ok {
		return fmt.Errorf("policy %s: %w", p.ID, policy.ErrNotFound)
	}
	s.policies[p.ID.String()] = copyPolicy(p)
	return nil
}

func (s *Store) DeletePolicy(_ context.Context, polID id.PolicyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[polID.String()]; !ok {
		return fmt.Errorf("policy %s: %w", polID, policy.ErrNotFound)
	}
	delete(s.policies, polID.String())
	return nil
}

func (s *Store) ListPolicies(_ context.Context, filter *policy.ListFilter) ([]*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*policy.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if filter != nil {
			if filter.TenantID != "" && p.TenantID != filter.TenantID {
				continue
			}
			if filter.Effect != "" && p.Effect != filter.Effect {
				continue
			}
			if filter.IsActive != nil && p.IsActive != *filter.IsActive {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyPolicy(p))
	}
	sortPolicies(result)
	return applyPagination(result, policyPagination(filter)), nil
}

func (s *Store) CountPolicies(ctx context.Context, filter *policy.ListFilter) (int64, error) {
	var unpaged *policy.ListFilter
	if filter != nil {
		f := *filter
		f.Limit, f.Offset = 0, 0
		unpaged = &f
	}
	list, err := s.ListPolicies(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ListActivePolicies returns the tenant's active policies in creation
// order, which is the order ties are broken in during evaluation.
func (s *Store) ListActivePolicies(_ context.Context, tenantID string) ([]*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*policy.Policy
	for _, p := range s.policies {
		if p.TenantID == tenantID && p.IsActive {
			result = append(result, copyPolicy(p))
		}
	}
	slices.SortFunc(result, byCreation)
	return result, nil
}

func (s *Store) DeletePoliciesByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.policies {
		if p.TenantID == tenantID {
			delete(s.policies, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Decision Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateDecisionLog(_ context.Context, e *decisionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisionLogs[e.ID.String()] = copyDecisionLog(e)
	return nil
}

func (s *Store) GetDecisionLog(_ context.Context, logID id.DecisionLogID) (*decisionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.decisionLogs[logID.String()]
	if !ok {
		return nil, fmt.Errorf("decision log %s: %w", logID, decisionlog.ErrNotFound)
	}
	return copyDecisionLog(e), nil
}

func (s *Store) ListDecisionLogs(_ context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*decisionlog.Entry, 0, len(s.decisionLogs))
	for _, e := range s.decisionLogs {
		if filter != nil && !matchesLogFilter(e, filter) {
			continue
		}
		result = append(result, copyDecisionLog(e))
	}
	slices.SortFunc(result, func(a, b *decisionlog.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return applyPagination(result, logPagination(filter)), nil
}

func (s *Store) CountDecisionLogs(_ context.Context, filter *decisionlog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, e := range s.decisionLogs {
		if filter == nil || matchesLogFilter(e, filter) {
			count++
		}
	}
	return count, nil
}

func (s *Store) PurgeDecisionLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, e := range s.decisionLogs {
		if e.CreatedAt.Before(before) {
			delete(s.decisionLogs, k)
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteDecisionLogsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.decisionLogs {
		if e.TenantID == tenantID {
			delete(s.decisionLogs, k)
		}
	}
	return nil
}

func matchesLogFilter(e *decisionlog.Entry, f *decisionlog.QueryFilter) bool {
	switch {
	case f.TenantID != "" && e.TenantID != f.TenantID:
		return false
	case f.SubjectKind != "" && e.SubjectKind != f.SubjectKind:
		return false
	case f.SubjectID != "" && e.SubjectID != f.SubjectID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.Decision != "" && e.Decision != f.Decision:
		return false
	case f.PolicyID != "" && e.PolicyID != f.PolicyID:
		return false
	case f.After != nil && e.CreatedAt.Before(*f.After):
		return false
	case f.Before != nil && e.CreatedAt.After(*f.Before):
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func byCreation(a, b *policy.Policy) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

func sortPolicies(ps []*policy.Policy) {
	slices.SortFunc(ps, func(a, b *policy.Policy) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return byCreation(a, b)
	})
}

func copyPolicy(p *policy.Policy) *policy.Policy {
	c := *p
	if p.Subject != nil {
		sc := *p.Subject
		sc.Kinds = slices.Clone(p.Subject.Kinds)
		sc.IDs = slices.Clone(p.Subject.IDs)
		sc.Roles = slices.Clone(p.Subject.Roles)
		sc.Attributes = slices.Clone(p.Subject.Attributes)
		c.Subject = &sc
	}
	c.Resource.Types = slices.Clone(p.Resource.Types)
	c.Resource.IDs = slices.Clone(p.Resource.IDs)
	c.Resource.Attributes = slices.Clone(p.Resource.Attributes)
	c.Action.Actions = slices.Clone(p.Action.Actions)
	if p.Environment != nil {
		ec := *p.Environment
		ec.Attributes = slices.Clone(p.Environment.Attributes)
		c.Environment = &ec
	}
	return &c
}

func copyDecisionLog(e *decisionlog.Entry) *decisionlog.Entry {
	c := *e
	return &c
}

type pagOpts struct{ limit, offset int }

func policyPagination(f *policy.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func logPagination(f *decisionlog.QueryFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset >= len(items) && p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}
