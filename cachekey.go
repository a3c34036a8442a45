package arbiter

import (
	"strings"
	"sync"

	"github.com/xraph/arbiter/policy"
)

// volatileIndex records, per tenant, which volatile environment keys the
// tenant's active policies read. A per-tenant generation, bumped on every
// invalidation, keeps a load that raced with a policy write from being
// recorded or cached.
type volatileIndex struct {
	mu   sync.Mutex
	gen  map[string]uint64
	refs map[string]map[string]bool
}

func newVolatileIndex() *volatileIndex {
	return &volatileIndex{gen: map[string]uint64{}, refs: map[string]map[string]bool{}}
}

func (v *volatileIndex) generation(tenantID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen[tenantID]
}

func (v *volatileIndex) current(tenantID string, gen uint64) bool {
	return v.generation(tenantID) == gen
}

// record indexes policies loaded at generation gen.
func (v *volatileIndex) record(tenantID string, gen uint64, keys []string, policies []*policy.Policy) {
	refs := make(map[string]bool, len(keys))
	for _, p := range policies {
		if p.Environment == nil {
			continue
		}
		for _, r := range p.Environment.Attributes {
			for _, k := range keys {
				if r.Field == k || strings.HasPrefix(r.Field, k+".") {
					refs[k] = true
				}
			}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen[tenantID] == gen {
		v.refs[tenantID] = refs
	}
}

func (v *volatileIndex) lookup(tenantID string) (map[string]bool, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	refs, ok := v.refs[tenantID]
	return refs, ok
}

func (v *volatileIndex) invalidate(tenantID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen[tenantID]++
	delete(v.refs, tenantID)
}

// cacheContext returns the context to key the decision cache with.
// Volatile environment keys that no active policy reads are dropped so
// per-request values such as "time" do not split the cache. ok is false
// when the tenant's policies have not been indexed yet, or when a
// volatile key the policies do read is present: such decisions are
// never cached.
func (e *Engine) cacheContext(tenantID string, ec *EvaluationContext) (*EvaluationContext, bool) {
	refs, known := e.volatile.lookup(tenantID)
	if !known {
		return nil, false
	}
	if ec.Environment == nil {
		return ec, true
	}

	var drop []string
	for _, k := range e.config.volatileKeys() {
		if _, present := ec.Environment.Attributes[k]; !present {
			continue
		}
		if refs[k] {
			return nil, false
		}
		drop = append(drop, k)
	}
	if len(drop) == 0 {
		return ec, true
	}

	attrs := make(map[string]any, len(ec.Environment.Attributes))
	for k, val := range ec.Environment.Attributes {
		attrs[k] = val
	}
	for _, k := range drop {
		delete(attrs, k)
	}
	keyed := *ec
	keyed.Environment = &Environment{Attributes: attrs}
	return &keyed, true
}
