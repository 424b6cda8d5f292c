package sites

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// ErrStrategyNotRegistered is returned when a site names an unknown strategy.
var ErrStrategyNotRegistered = errors.New("strategy not registered")

// Factory builds an extractor. It runs at most once per successful resolve.
type Factory func() (datasheet.Extractor, error)

// Registry maps strategy keys to factories and memoizes built extractors.
// The cache is never evicted; it is bounded by the number of registered keys.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	built     map[string]datasheet.Extractor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		built:     make(map[string]datasheet.Extractor),
	}
}

// Register binds key to factory, replacing any previous binding.
func (r *Registry) Register(key string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
	delete(r.built, key)
}

// Resolve returns the extractor for key, building it on first use.
// Failed builds are not cached so a later request may retry.
func (r *Registry) Resolve(key string) (datasheet.Extractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex, ok := r.built[key]; ok {
		return ex, nil
	}
	factory, ok := r.factories[key]
	if !ok || factory == nil {
		return nil, fmt.Errorf("resolve %q: %w", key, ErrStrategyNotRegistered)
	}
	ex, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build strategy %q: %w", key, err)
	}
	if ex == nil {
		return nil, fmt.Errorf("build strategy %q: factory returned nil", key)
	}
	r.built[key] = ex
	return ex, nil
}

// Keys lists registered strategy keys in lexical order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
