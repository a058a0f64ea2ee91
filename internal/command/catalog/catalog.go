// Package catalog defines the built-in administrative operations and builds
// commands for them from loosely typed arguments.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/tpodg/fleetadmin/internal/command"
)

// ErrUnknownOperation is returned by Build for operations with no builder.
var ErrUnknownOperation = errors.New("unknown operation")

// Handler builds a command from raw arguments.
type Handler func(args any) (command.Command, error)

// Builder ties an operation name to a handler.
type Builder struct {
	Operation string
	Handler   Handler
}

// DecodeArgs decodes raw arguments into a typed args struct.
func DecodeArgs[T any](raw any) (T, error) {
	var args T
	if raw == nil {
		return args, nil
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return args, fmt.Errorf("encode args: %w", err)
	}
	if err := yaml.Unmarshal(data, &args); err != nil {
		return args, fmt.Errorf("decode args: %w", err)
	}
	return args, nil
}

// BuilderFor creates a Builder that decodes arguments into T before building.
func BuilderFor[T any](op string, build func(T) (command.Command, error)) Builder {
	return Builder{
		Operation: op,
		Handler: func(raw any) (command.Command, error) {
			args, err := DecodeArgs[T](raw)
			if err != nil {
				return command.Command{}, err
			}
			return build(args)
		},
	}
}

// Catalog indexes builders by operation.
type Catalog struct {
	handlers map[string]Handler
}

// New indexes builders and rejects duplicate operations.
func New(builders ...Builder) (*Catalog, error) {
	handlers := make(map[string]Handler, len(builders))
	for _, b := range builders {
		if b.Operation == "" {
			return nil, fmt.Errorf("builder with empty operation")
		}
		if _, exists := handlers[b.Operation]; exists {
			return nil, fmt.Errorf("duplicate builder for operation: %s", b.Operation)
		}
		handlers[b.Operation] = b.Handler
	}
	return &Catalog{handlers: handlers}, nil
}

// Build returns a validated command for op.
func (c *Catalog) Build(op string, args any) (command.Command, error) {
	handler, ok := c.handlers[op]
	if !ok {
		return command.Command{}, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	cmd, err := handler(args)
	if err != nil {
		return command.Command{}, fmt.Errorf("failed to build %s: %w", op, err)
	}
	return cmd, nil
}

// Operations returns the known operations in sorted order.
func (c *Catalog) Operations() []string {
	ops := make([]string, 0, len(c.handlers))
	for op := range c.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

var builtin = func() *Catalog {
	c, err := New(Builders()...)
	if err != nil {
		panic(err)
	}
	return c
}()

// Build builds op from the built-in catalog.
func Build(op string, args any) (command.Command, error) {
	return builtin.Build(op, args)
}

// Operations lists the built-in operations.
func Operations() []string {
	return builtin.Operations()
}
