// Package registry maps each operation to its protocol-specific runners.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tpodg/fleetadmin/internal/runner"
	"github.com/tpodg/fleetadmin/internal/server"
)

// ErrUnsupportedCommand matches every *UnsupportedCommandError.
var ErrUnsupportedCommand = errors.New("unsupported command")

// UnsupportedCommandError means no runner is registered for the pairing.
type UnsupportedCommandError struct {
	Operation  string
	Generation server.Generation
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("unsupported command %q for %s protocol", e.Operation, e.Generation)
}

func (e *UnsupportedCommandError) Is(target error) bool {
	return target == ErrUnsupportedCommand
}

// Binding registers the runners for one operation. Either runner may be nil
// when the operation does not exist in that protocol generation.
type Binding struct {
	Operation string
	Legacy    runner.Runner
	REST      runner.Runner
}

// Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	bindings map[string]Binding
}

// New validates bindings and builds a Registry.
func New(bindings ...Binding) (*Registry, error) {
	index := make(map[string]Binding, len(bindings))
	for _, b := range bindings {
		if b.Operation == "" {
			return nil, fmt.Errorf("binding with empty operation")
		}
		if _, exists := index[b.Operation]; exists {
			return nil, fmt.Errorf("duplicate binding for operation: %s", b.Operation)
		}
		if b.Legacy == nil && b.REST == nil {
			return nil, fmt.Errorf("binding for %s has no runners", b.Operation)
		}
		index[b.Operation] = b
	}
	return &Registry{bindings: index}, nil
}

// MustNew is New for static tables; a broken table panics.
func MustNew(bindings ...Binding) *Registry {
	r, err := New(bindings...)
	if err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
	return r
}

// Resolve returns the runner for op on servers of generation gen.
func (r *Registry) Resolve(op string, gen server.Generation) (runner.Runner, error) {
	b, ok := r.bindings[op]
	if !ok {
		return nil, &UnsupportedCommandError{Operation: op, Generation: gen}
	}

	var rn runner.Runner
	switch gen {
	case server.REST:
		rn = b.REST
	case server.Legacy:
		rn = b.Legacy
	}
	if rn == nil {
		return nil, &UnsupportedCommandError{Operation: op, Generation: gen}
	}
	return rn, nil
}

// Operations returns registered operations in sorted order.
func (r *Registry) Operations() []string {
	ops := make([]string, 0, len(r.bindings))
	for op := range r.bindings {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Supports reports which generations have a runner for op.
func (r *Registry) Supports(op string) (legacy, rest bool) {
	b, ok := r.bindings[op]
	if !ok {
		return false, false
	}
	return b.Legacy != nil, b.REST != nil
}
