package mediaflow

import (
	"sync"

	"go.uber.org/zap"
)

// Registry indexes providers by id and protocol
type Registry[P Descriptor] struct {
	mu        sync.RWMutex
	kind      string
	providers map[string]P
	order     []string
	logger    *zap.Logger
}

// ImageRegistry holds image providers
type ImageRegistry = Registry[ImageProvider]

// VideoRegistry holds video providers
type VideoRegistry = Registry[VideoProvider]

// NewRegistry creates an empty registry. kind is only used in log output.
func NewRegistry[P Descriptor](kind string, logger *zap.Logger) *Registry[P] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry[P]{
		kind:      kind,
		providers: make(map[string]P),
		logger:    logger,
	}
}

// NewImageRegistry creates an empty image provider registry
func NewImageRegistry(logger *zap.Logger) *ImageRegistry {
	return NewRegistry[ImageProvider]("image", logger)
}

// NewVideoRegistry creates an empty video provider registry
func NewVideoRegistry(logger *zap.Logger) *VideoRegistry {
	return NewRegistry[VideoProvider]("video", logger)
}

// Register adds a provider. Registering an id again replaces the provider in place.
func (r *Registry[P]) Register(p P) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.providers[id]; exists {
		r.logger.Warn("provider already registered, overwriting",
			zap.String("kind", r.kind), zap.String("provider", id))
	} else {
		r.order = append(r.order, id)
	}
	r.providers[id] = p
	r.logger.Info("provider registered",
		zap.String("kind", r.kind),
		zap.String("provider", id),
		zap.String("protocol", string(p.Protocol())))
}

// Get returns the provider with the given id
func (r *Registry[P]) Get(id string) (P, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// GetByProtocol returns the first registered provider speaking protocol
func (r *Registry[P]) GetByProtocol(protocol Protocol) (P, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if p := r.providers[id]; p.Protocol() == protocol {
			return p, true
		}
	}
	var zero P
	return zero, false
}

// All returns the providers in registration order
func (r *Registry[P]) All() []P {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]P, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// Has reports whether id is registered
func (r *Registry[P]) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[id]
	return ok
}

// Unregister removes a provider and reports whether it was present
func (r *Registry[P]) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return false
	}
	delete(r.providers, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every provider
func (r *Registry[P]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]P)
	r.order = nil
}
