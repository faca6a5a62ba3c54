package runtime

import (
	"fmt"

	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// Registry resolves a v1.RuntimeType to its Adapter, built once at startup
// from a single Config so every adapter shares poll/settle/timeout tuning.
type Registry struct {
	adapters map[v1.RuntimeType]Adapter
}

// NewRegistry builds the standard four adapters.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{adapters: make(map[v1.RuntimeType]Adapter)}
	for _, a := range []Adapter{
		NewClaudeAdapter(cfg),
		NewGeminiAdapter(cfg),
		NewCodexAdapter(cfg),
		NewShellAdapter(cfg),
	} {
		r.adapters[a.RuntimeType()] = a
	}
	return r
}

// Resolve returns the adapter for runtimeType.
func (r *Registry) Resolve(runtimeType v1.RuntimeType) (Adapter, error) {
	adapter, ok := r.adapters[runtimeType]
	if !ok {
		return nil, fmt.Errorf("runtime: no adapter registered for %q", runtimeType)
	}
	return adapter, nil
}
