package tenant

import (
	"sync"
)

// Registry holds the tenant contexts of one exchange group, keyed by
// tenant ID. Iteration order is the onboarding order, so batch results
// are stable across bins.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*Context
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[string]*Context),
	}
}

// Add onboards a tenant. Re-adding an existing ID replaces its context.
func (r *Registry) Add(tc *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[tc.ID]; !ok {
		r.order = append(r.order, tc.ID)
	}
	r.contexts[tc.ID] = tc
}

// Remove destroys a tenant's context.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[id]; !ok {
		return
	}
	delete(r.contexts, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get resolves a tenant's context. Returns nil if the tenant is unknown.
func (r *Registry) Get(id string) *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[id]
}

// IDs returns all tenant IDs in onboarding order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of onboarded tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
