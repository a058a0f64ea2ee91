package command

import (
	"fmt"
	"maps"
	"strings"
)

// Shape describes which addressing fields a Command carries.
type Shape int

const (
	// Plain commands address the whole domain (e.g. list-web-services).
	Plain Shape = iota
	// Targeted commands address one instance or cluster.
	Targeted
	// TargetedNamed commands address one module on one instance or cluster.
	TargetedNamed
)

func (s Shape) String() string {
	switch s {
	case Plain:
		return "plain"
	case Targeted:
		return "targeted"
	case TargetedNamed:
		return "targeted+named"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Property is one key/value pair of a property mutation.
type Property struct {
	Key   string
	Value string
}

// Command is an immutable administrative request. Build it with New,
// NewTargeted or NewTargetedNamed; the zero value is invalid.
type Command struct {
	operation  string
	shape      Shape
	target     string
	name       string
	params     map[string]string
	properties []Property
}

// Option sets an optional parameter at construction time.
type Option func(*Command) error

// WithParam adds a named wire parameter.
func WithParam(key, value string) Option {
	return func(c *Command) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return &ValidationError{Field: "param", Message: "key is required"}
		}
		if c.params == nil {
			c.params = make(map[string]string)
		}
		c.params[key] = value
		return nil
	}
}

// WithProperty appends a property pair. Order is preserved on the wire.
func WithProperty(key, value string) Option {
	return func(c *Command) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return &ValidationError{Field: "property", Message: "key is required"}
		}
		c.properties = append(c.properties, Property{Key: key, Value: value})
		return nil
	}
}

// New builds a Plain command.
func New(operation string, opts ...Option) (Command, error) {
	return build(Command{operation: strings.TrimSpace(operation), shape: Plain}, opts)
}

// NewTargeted builds a command addressed to one instance or cluster.
func NewTargeted(operation, target string, opts ...Option) (Command, error) {
	return build(Command{
		operation: strings.TrimSpace(operation),
		shape:     Targeted,
		target:    strings.TrimSpace(target),
	}, opts)
}

// NewTargetedNamed builds a command addressed to one module on a target.
func NewTargetedNamed(operation, target, name string, opts ...Option) (Command, error) {
	return build(Command{
		operation: strings.TrimSpace(operation),
		shape:     TargetedNamed,
		target:    strings.TrimSpace(target),
		name:      strings.TrimSpace(name),
	}, opts)
}

func build(c Command, opts []Option) (Command, error) {
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return Command{}, err
		}
	}
	return c, nil
}

// Validate reports whether every field required by the shape is present.
func (c Command) Validate() error {
	if c.operation == "" {
		return &ValidationError{Field: "operation", Message: "is required"}
	}
	switch c.shape {
	case Plain:
	case Targeted:
		if c.target == "" {
			return &ValidationError{Field: "target", Message: "is required"}
		}
	case TargetedNamed:
		if c.target == "" {
			return &ValidationError{Field: "target", Message: "is required"}
		}
		if c.name == "" {
			return &ValidationError{Field: "name", Message: "is required"}
		}
	default:
		return &ValidationError{Field: "shape", Message: fmt.Sprintf("unsupported %s", c.shape)}
	}
	return nil
}

func (c Command) Operation() string { return c.operation }
func (c Command) Shape() Shape      { return c.shape }
func (c Command) Target() string    { return c.target }
func (c Command) Name() string      { return c.name }

// Param returns a named parameter and whether it was set.
func (c Command) Param(key string) (string, bool) {
	v, ok := c.params[key]
	return v, ok
}

// Params returns a copy of the named parameters.
func (c Command) Params() map[string]string {
	if len(c.params) == 0 {
		return map[string]string{}
	}
	return maps.Clone(c.params)
}

// Properties returns a copy of the property pairs in insertion order.
func (c Command) Properties() []Property {
	if len(c.properties) == 0 {
		return nil
	}
	out := make([]Property, len(c.properties))
	copy(out, c.properties)
	return out
}

func (c Command) String() string {
	switch c.shape {
	case Targeted:
		return fmt.Sprintf("%s target=%s", c.operation, c.target)
	case TargetedNamed:
		return fmt.Sprintf("%s target=%s name=%s", c.operation, c.target, c.name)
	default:
		return c.operation
	}
}
