// Package backend hosts the concrete VDF constructions and the registry the
// engine dispatches submissions through.
package backend

import (
	"fmt"
	"sync"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
)

// Registry maps backend kinds to their implementations. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[vdf.BackendKind]module.Backend
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[vdf.BackendKind]module.Backend),
	}
}

// Register adds a backend to the registry. Registering the same kind twice
// is an error.
func (r *Registry) Register(backend module.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := backend.Kind()
	if _, dup := r.backends[kind]; dup {
		return fmt.Errorf("backend kind %q already registered", kind)
	}
	r.backends[kind] = backend
	return nil
}

// Get returns the backend for the given kind, or an InvalidParameterError
// if the kind is unknown.
func (r *Registry) Get(kind vdf.BackendKind) (module.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.backends[kind]
	if !ok {
		return nil, vdf.NewInvalidParameterError("backendKind", "unknown backend kind %q", kind)
	}
	return backend, nil
}

// Kinds returns the registered backend kinds, in unspecified order.
func (r *Registry) Kinds() []vdf.BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]vdf.BackendKind, 0, len(r.backends))
	for kind := range r.backends {
		kinds = append(kinds, kind)
	}
	return kinds
}
