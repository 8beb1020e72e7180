// Package registry declares the set of valid action kinds and validates
// submitted parameters against their schemas. The registry is built once at
// process start and read-only afterward; descriptor lookup at request time
// never mutates it.
package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Resolve for an unregistered action name.
var ErrNotFound = errors.New("registry: action not found")

// Descriptor is the static metadata for one action kind: a unique name, a
// human-readable description for tool listings, and the parameter schema.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Registry maps action names to descriptors. Construct with New; the zero
// value is an empty registry that resolves nothing.
type Registry struct {
	byName map[string]Descriptor
	names  []string
}

// New builds a registry from the given descriptors. A duplicate name or an
// empty name is a construction error: bad registrations fail at startup,
// never at request time.
func New(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, errors.New("registry: descriptor with empty name")
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate action %q", d.Name)
		}
		r.byName[d.Name] = d
		r.names = append(r.names, d.Name)
	}
	return r, nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("registry: %q: %w", name, ErrNotFound)
	}
	return d, nil
}

// Validate resolves name and checks params against its schema. It returns
// the validated parameter map on success. The map is the caller's input,
// not a copy; validation rejects unknown fields, so everything in it is
// schema-described.
func (r *Registry) Validate(name string, params map[string]any) (map[string]any, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	issues := d.Parameters.check("", params)
	if len(issues) > 0 {
		return nil, &SchemaError{Action: name, Issues: issues}
	}
	return params, nil
}

// Descriptors returns all registered descriptors in registration order. The
// result is a fresh slice; callers may not mutate the registry through it.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

// SchemaError reports why submitted parameters failed validation. It is a
// rejection: nothing was persisted.
type SchemaError struct {
	Action string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("registry: invalid parameters for %q: %v", e.Action, e.Issues)
}
