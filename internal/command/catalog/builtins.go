package catalog

import (
	"sort"

	"github.com/tpodg/fleetadmin/internal/command"
)

const (
	OpVersion            = "version"
	OpLocation           = "location"
	OpListClusters       = "list-clusters"
	OpListWebServices    = "list-web-services"
	OpListApplications   = "list-applications"
	OpStartCluster       = "start-cluster"
	OpStopCluster        = "stop-cluster"
	OpStartInstance      = "start-instance"
	OpStopInstance       = "stop-instance"
	OpDeploy             = "deploy"
	OpUndeploy           = "undeploy"
	OpEnable             = "enable"
	OpDisable            = "disable"
	OpApplicationEnabled = "application-enabled"
	OpGet                = "get"
	OpSet                = "set"
)

// DefaultTarget is the stand-alone admin server target used when application
// commands name no target.
const DefaultTarget = "server"

type TargetArgs struct {
	Target string `yaml:"target"`
}

type AppArgs struct {
	Target string `yaml:"target"`
	Name   string `yaml:"name"`
}

type DeployArgs struct {
	Target      string            `yaml:"target"`
	Name        string            `yaml:"name"`
	Path        string            `yaml:"path"`
	ContextRoot string            `yaml:"context_root"`
	Force       bool              `yaml:"force"`
	Properties  map[string]string `yaml:"properties"`
}

type GetArgs struct {
	Pattern string `yaml:"pattern"`
}

type SetArgs struct {
	Properties map[string]string `yaml:"properties"`
}

// Builders returns the built-in operation builders.
func Builders() []Builder {
	plain := func(op string) Builder {
		return BuilderFor(op, func(struct{}) (command.Command, error) { return command.New(op) })
	}
	targeted := func(op string) Builder {
		return BuilderFor(op, func(a TargetArgs) (command.Command, error) { return command.NewTargeted(op, a.Target) })
	}
	app := func(op string) Builder {
		return BuilderFor(op, func(a AppArgs) (command.Command, error) {
			return command.NewTargetedNamed(op, orDefault(a.Target), a.Name)
		})
	}

	return []Builder{
		plain(OpVersion),
		plain(OpLocation),
		plain(OpListClusters),
		plain(OpListWebServices),
		BuilderFor(OpListApplications, func(a TargetArgs) (command.Command, error) {
			return ListApplications(orDefault(a.Target))
		}),
		targeted(OpStartCluster),
		targeted(OpStopCluster),
		targeted(OpStartInstance),
		targeted(OpStopInstance),
		BuilderFor(OpDeploy, Deploy),
		app(OpUndeploy),
		app(OpEnable),
		app(OpDisable),
		app(OpApplicationEnabled),
		BuilderFor(OpGet, func(a GetArgs) (command.Command, error) { return Get(a.Pattern) }),
		BuilderFor(OpSet, func(a SetArgs) (command.Command, error) { return Set(a.Properties) }),
	}
}

func Version() (command.Command, error) { return command.New(OpVersion) }

func ListApplications(target string) (command.Command, error) {
	return command.NewTargeted(OpListApplications, target)
}

func StartCluster(cluster string) (command.Command, error) {
	return command.NewTargeted(OpStartCluster, cluster)
}

func Undeploy(target, name string) (command.Command, error) {
	return command.NewTargetedNamed(OpUndeploy, target, name)
}

// Deploy builds a deploy command. Path is required.
func Deploy(a DeployArgs) (command.Command, error) {
	if a.Path == "" {
		return command.Command{}, &command.ValidationError{Field: "path", Message: "is required"}
	}
	opts := []command.Option{command.WithParam("path", a.Path)}
	if a.ContextRoot != "" {
		opts = append(opts, command.WithParam("contextroot", a.ContextRoot))
	}
	if a.Force {
		opts = append(opts, command.WithParam("force", "true"))
	}
	opts = append(opts, propertyOptions(a.Properties)...)
	return command.NewTargetedNamed(OpDeploy, orDefault(a.Target), a.Name, opts...)
}

// Get reads the dotted-name properties matching pattern.
func Get(pattern string) (command.Command, error) {
	if pattern == "" {
		return command.Command{}, &command.ValidationError{Field: "pattern", Message: "is required"}
	}
	return command.New(OpGet, command.WithParam("pattern", pattern))
}

// Set writes properties. Keys are sent in sorted order.
func Set(properties map[string]string) (command.Command, error) {
	if len(properties) == 0 {
		return command.Command{}, &command.ValidationError{Field: "properties", Message: "at least one is required"}
	}
	return command.New(OpSet, propertyOptions(properties)...)
}

func propertyOptions(props map[string]string) []command.Option {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	opts := make([]command.Option, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, command.WithProperty(k, props[k]))
	}
	return opts
}

func orDefault(target string) string {
	if target == "" {
		return DefaultTarget
	}
	return target
}
