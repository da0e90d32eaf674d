package executor

import (
	"context"
	"sort"
	"sync"
)

// Operation is an opaque gated callable.
type Operation func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Registry maps operation names to callables.
type Registry struct {
	operations map[string]Operation
	mux        sync.RWMutex
}

// Lookup returns an operation by name
func (r *Registry) Lookup(name string) Operation {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return r.operations[name]
}

// Register registers an operation
func (r *Registry) Register(name string, operation Operation) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.operations[name] = operation
}

// Names returns registered operation names, sorted
func (r *Registry) Names() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret := make([]string, 0, len(r.operations))
	for name := range r.operations {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{operations: make(map[string]Operation)}
}
