package breaker

import "sync"

// Registry holds one breaker per provider identifier, creating them lazily.
// State is in-process only: a restart resets every provider to closed.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	byName   map[string]*Breaker
}

func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings.withDefaults(),
		byName:   make(map[string]*Breaker),
	}
}

func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byName[provider]
	if !ok {
		b = New(r.settings)
		r.byName[provider] = b
	}
	return b
}

// States returns a snapshot of every known provider's breaker state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.byName))
	for name, b := range r.byName {
		out[name] = b.State()
	}
	return out
}
