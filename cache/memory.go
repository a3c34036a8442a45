// Package cache provides caching implementations for Arbiter decisions.
package cache

import (
	"context"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/xraph/arbiter"
)

// Compile-time interface check.
var _ arbiter.Cache = (*Memory)(nil)

// keyMode encodes evaluation contexts deterministically (sorted map keys,
// shortest-form integers) so equal contexts always hash to the same key.
var keyMode = mustKeyMode()

func mustKeyMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic("cache: build cbor encoding mode: " + err.Error())
	}
	return em
}

// Memory is an in-memory cache with TTL-based expiration and a size cap.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	result    *arbiter.EvaluationResult
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get returns a copy of a cached result.
func (m *Memory) Get(_ context.Context, tenantID string, ec *arbiter.EvaluationContext) (*arbiter.EvaluationResult, bool) {
	key, ok := cacheKey(tenantID, ec)
	if !ok {
		return nil, false
	}
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// A concurrent Set may have replaced the entry since the read.
		if cur, ok := m.entries[key]; ok && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return cloneResult(e.result), true
}

// Set stores a result in the cache. Contexts that cannot be encoded are
// not cached.
func (m *Memory) Set(_ context.Context, tenantID string, ec *arbiter.EvaluationContext, result *arbiter.EvaluationResult) {
	key, ok := cacheKey(tenantID, ec)
	if !ok {
		return
	}
	stored := cloneResult(result)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	m.entries[key] = &entry{
		result:    stored,
		expiresAt: m.now().Add(m.ttl),
	}
}

// cloneResult copies r and its matched-policy slice. The policies
// themselves are shared and must be treated as read-only.
func cloneResult(r *arbiter.EvaluationResult) *arbiter.EvaluationResult {
	c := *r
	c.MatchedPolicies = slices.Clone(r.MatchedPolicies)
	return &c
}

// InvalidateTenant removes all cached results for a tenant.
func (m *Memory) InvalidateTenant(_ context.Context, tenantID string) {
	m.deletePrefix(tenantID + "|")
}

// InvalidateSubject removes all cached results for a specific subject.
func (m *Memory) InvalidateSubject(_ context.Context, tenantID string, subjectKind arbiter.SubjectKind, subjectID string) {
	m.deletePrefix(tenantID + "|" + string(subjectKind) + "|" + subjectID + "|")
}

func (m *Memory) deletePrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
}

// cacheKey is "tenant|kind|subject|digest", where digest is the BLAKE3
// hash of the deterministic CBOR encoding of the whole context.
func cacheKey(tenantID string, ec *arbiter.EvaluationContext) (string, bool) {
	data, err := keyMode.Marshal(ec)
	if err != nil {
		return "", false
	}
	sum := blake3.Sum256(data)
	return tenantID + "|" + string(ec.Subject.Kind) + "|" + ec.Subject.ID + "|" + hex.EncodeToString(sum[:]), true
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes the entry closest to expiry. Must hold write lock.
func (m *Memory) evictOne() {
	var oldest string
	var at time.Time
	for k, e := range m.entries {
		if oldest == "" || e.expiresAt.Before(at) {
			oldest, at = k, e.expiresAt
		}
	}
	delete(m.entries, oldest)
}
