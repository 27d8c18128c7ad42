package engines

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"arcanum/internal/models"
)

// CalculateFunc is the contract every calculation engine satisfies. The
// caching layer treats the input and the result data as opaque; only Success
// and Confidence are interpreted.
type CalculateFunc func(ctx context.Context, input map[string]any) (*models.EngineResult, error)

// Registry maps engine names to their calculators.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]CalculateFunc
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]CalculateFunc)}
}

// Register adds or replaces an engine.
func (r *Registry) Register(name string, fn CalculateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = fn
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate invokes the named engine. An unknown engine is an error; an
// engine that runs but reports failure returns a result with Success=false
// and no error, so bulk callers can tally it without aborting.
func (r *Registry) Calculate(ctx context.Context, name string, input map[string]any) (*models.EngineResult, error) {
	r.mu.RLock()
	fn, ok := r.engines[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s", name)
	}
	result, err := fn(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", name, err)
	}
	if result == nil {
		return nil, fmt.Errorf("engine %s returned no result", name)
	}
	return result, nil
}
