package convoy

import (
	"fmt"
	"strings"
)

// Registry is the immutable node lookup table. It is built once at
// startup from the full handler set and never modified afterwards, so
// it is safe for concurrent use without locking.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry from handlers.
//
// Returns an error if:
//   - a handler's ID is empty or contains whitespace
//   - two handlers share an ID
func NewRegistry(handlers ...Handler) (*Registry, error) {
	entries := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		spec := h.Spec()
		if spec.ID == "" {
			return nil, fmt.Errorf("node ID cannot be empty")
		}
		if strings.ContainsAny(spec.ID, " \t\n\r") {
			return nil, fmt.Errorf("node ID cannot contain whitespace: %q", spec.ID)
		}
		if _, exists := entries[spec.ID]; exists {
			return nil, fmt.Errorf("duplicate node ID: %s", spec.ID)
		}
		entries[spec.ID] = h
	}
	return &Registry{handlers: entries}, nil
}

// MustRegistry builds a registry, panicking on error. Use at startup
// where a bad handler set is a programming error.
func MustRegistry(handlers ...Handler) *Registry {
	r, err := NewRegistry(handlers...)
	if err != nil {
		panic("convoy: " + err.Error())
	}
	return r
}

// Get returns the handler for a node ID and whether it exists.
func (r *Registry) Get(id string) (Handler, bool) {
	h, ok := r.handlers[id]
	return h, ok
}

// Has reports whether a node ID is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.handlers[id]
	return ok
}

// IDs returns all registered node IDs. The order is not guaranteed.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	return ids
}

// validateCoverage checks that every destination in the transition
// table resolves to a registered handler. Run from NewEngine so a
// missing node is a startup error, not a mid-conversation defect.
func (r *Registry) validateCoverage() error {
	seen := make(map[string]bool)
	check := func(node string) error {
		if seen[node] {
			return nil
		}
		seen[node] = true
		if !r.Has(node) {
			return fmt.Errorf("%w: %s", ErrNodeNotRegistered, node)
		}
		return nil
	}

	for _, tr := range table {
		if err := check(tr.Node); err != nil {
			return err
		}
	}
	for _, tr := range paymentRoutes {
		if err := check(tr.Node); err != nil {
			return err
		}
	}
	return nil
}
