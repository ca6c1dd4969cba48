// Package provider defines the interface and implementations for web search
// evidence providers.
package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Query identifies the institution being searched plus optional hints that
// narrow the results.
type Query struct {
	Institution string
	// Locality carries already-known address fragments, used to disambiguate
	// institutions with common names.
	Locality string
}

// Terms returns the flat search string for providers that take plain queries.
func (q Query) Terms() string {
	parts := []string{q.Institution, "contactos"}
	if q.Locality != "" {
		parts = append(parts, q.Locality)
	}
	return strings.Join(parts, " ")
}

// Provider fetches raw evidence about an institution from one upstream
// search service.
type Provider interface {
	// Name returns the provider identifier used in evidence provenance,
	// rate limit config, and logs.
	Name() string
	// Search fetches evidence for an institution. A provider with nothing to
	// contribute returns an empty slice and nil error; errors are reserved
	// for upstream failures.
	Search(ctx context.Context, q Query) ([]model.EvidenceItem, error)
}

// Registry manages the providers enabled for a run.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names in sorted order, so fan-out and
// log output stay deterministic.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered providers in name order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		out = append(out, r.providers[name])
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
