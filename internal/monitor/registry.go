package monitor

import (
	"sync"

	"github.com/slawatch/slawatch/internal/model"
)

// ViolationRegistry tracks active violations keyed by "slaID:service". It
// enforces the one-active-violation-per-pair invariant inside a process; the
// violation store remains the source of truth across restarts.
type ViolationRegistry struct {
	mu     sync.RWMutex
	active map[string]*model.Violation
}

// NewViolationRegistry creates an empty registry
func NewViolationRegistry() *ViolationRegistry {
	return &ViolationRegistry{active: make(map[string]*model.Violation)}
}

// Get returns the active violation for a key
func (r *ViolationRegistry) Get(key string) (*model.Violation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.active[key]
	return v, ok
}

// Put registers a violation under its pair key
func (r *ViolationRegistry) Put(v *model.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active[v.Key()] = v
}

// Remove drops the violation registered under key
func (r *ViolationRegistry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, key)
}

// Active returns a snapshot of all registered violations
func (r *ViolationRegistry) Active() []*model.Violation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Violation, 0, len(r.active))
	for _, v := range r.active {
		out = append(out, v)
	}
	return out
}

// Len reports the number of active violations
func (r *ViolationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.active)
}
