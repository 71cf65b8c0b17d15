package nodes

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
)

// Constructor builds a behavior with its default options.
type Constructor func(svc *Services) graph.Behavior

// Registry maps serialized node_type names to behavior constructors.
// It implements graph.Factory.
type Registry struct {
	mu    sync.RWMutex
	svc   *Services
	types map[string]Constructor
}

var _ graph.Factory = (*Registry)(nil)

// NewRegistry creates an empty registry. A nil svc uses DefaultServices.
func NewRegistry(svc *Services) *Registry {
	if svc == nil {
		svc = DefaultServices()
	}
	return &Registry{
		svc:   svc,
		types: make(map[string]Constructor),
	}
}

// Default returns a registry holding the whole node catalog.
func Default(svc *Services) *Registry {
	r := NewRegistry(svc)
	r.Register(graph.TypeStart, func(*Services) graph.Behavior { return graph.Start{} })
	r.Register(graph.TypeInit, func(*Services) graph.Behavior { return &graph.Init{} })
	for name, ctor := range catalog {
		r.Register(name, ctor)
	}
	return r
}

// Register adds a node type.
// If a type with the same name exists, it is overwritten.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = ctor
}

// New builds a behavior of the given type and applies opts over its defaults.
func (r *Registry) New(nodeType string, opts map[string]any) (graph.Behavior, error) {
	r.mu.RLock()
	ctor, ok := r.types[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownNodeType, nodeType)
	}

	b := ctor(r.svc)
	if len(opts) > 0 {
		if err := b.SetOptions(opts); err != nil {
			return nil, fmt.Errorf("options for %s: %w", nodeType, err)
		}
	}
	return b, nil
}

// Types lists the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeID returns the position of nodeType in Types, the numeric id stores
// use for their node type tables.
func (r *Registry) TypeID(nodeType string) (int, error) {
	for i, name := range r.Types() {
		if name == nodeType {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrUnknownNodeType, nodeType)
}

// Services returns the service handles passed to constructors.
func (r *Registry) Services() *Services { return r.svc }
