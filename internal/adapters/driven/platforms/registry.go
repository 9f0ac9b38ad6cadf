package platforms

import (
	"sort"
	"sync"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
)

// Registry maps platforms to their OAuth handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Platform]OAuthHandler
}

// NewRegistry creates a registry with the given handlers.
func NewRegistry(handlers ...OAuthHandler) *Registry {
	r := &Registry{
		handlers: make(map[domain.Platform]OAuthHandler),
	}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register registers a handler under its platform, replacing any previous one.
func (r *Registry) Register(handler OAuthHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Platform()] = handler
}

// Get returns the handler for a platform.
func (r *Registry) Get(platform domain.Platform) (OAuthHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[platform]
	return h, ok
}

// Platforms returns all registered platforms in name order.
func (r *Registry) Platforms() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Platform, 0, len(r.handlers))
	for p := range r.handlers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
