package registry

import (
	"github.com/tpodg/fleetadmin/internal/command/catalog"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/runner/legacy"
	"github.com/tpodg/fleetadmin/internal/runner/rest"
)

// Builtins returns the binding table for every catalog operation.
func Builtins() []Binding {
	return []Binding{
		{catalog.OpVersion, legacy.New(result.KindText), rest.Get("version", result.KindText)},
		{catalog.OpLocation, legacy.New(result.KindProperties), rest.Get("location", result.KindProperties)},
		{catalog.OpListClusters, legacy.New(result.KindList), rest.Get("clusters", result.KindList)},
		{catalog.OpListWebServices, legacy.New(result.KindList), rest.Get("web-services", result.KindList)},
		{catalog.OpListApplications, legacy.New(result.KindList), rest.Get("targets/{target}/applications", result.KindList)},
		{catalog.OpStartCluster, legacy.New(result.KindNone), rest.Post("clusters/{target}/start", result.KindNone)},
		{catalog.OpStopCluster, legacy.New(result.KindNone), rest.Post("clusters/{target}/stop", result.KindNone)},
		{catalog.OpStartInstance, legacy.New(result.KindNone), rest.Post("instances/{target}/start", result.KindNone)},
		{catalog.OpStopInstance, legacy.New(result.KindNone), rest.Post("instances/{target}/stop", result.KindNone)},
		{catalog.OpDeploy, legacy.New(result.KindNone), rest.PostMultipart("targets/{target}/applications", result.KindNone)},
		{catalog.OpUndeploy, legacy.New(result.KindNone), rest.Delete("targets/{target}/applications/{name}", result.KindNone)},
		{catalog.OpEnable, legacy.New(result.KindNone), rest.Post("targets/{target}/applications/{name}/enable", result.KindNone)},
		{catalog.OpDisable, legacy.New(result.KindNone), rest.Post("targets/{target}/applications/{name}/disable", result.KindNone)},
		// The legacy protocol has no single-application status query.
		{catalog.OpApplicationEnabled, nil, rest.Get("targets/{target}/applications/{name}/enabled", result.KindBool)},
		{catalog.OpGet, legacy.New(result.KindProperties), rest.Get("properties", result.KindProperties)},
		{catalog.OpSet, legacy.NewBodyProperties(result.KindNone), rest.Post("properties", result.KindNone)},
	}
}

var builtin = MustNew(Builtins()...)

// Default returns the registry built from Builtins.
func Default() *Registry {
	return builtin
}
