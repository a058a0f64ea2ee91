// Package plan turns configured command lists into validated commands and
// runs them against a server in order.
package plan

import (
	"fmt"

	"github.com/tpodg/fleetadmin/internal/command"
	"github.com/tpodg/fleetadmin/internal/command/catalog"
	"github.com/tpodg/fleetadmin/internal/config"
)

// Build merges the per-operation defaults under each step's args and builds
// the commands through the catalog. A step that fails to build fails the plan.
func Build(defaults map[string]any, steps []config.CommandConfig) ([]command.Command, error) {
	cmds := make([]command.Command, 0, len(steps))
	for i, step := range steps {
		args := mergeConfig(asMap(defaults[step.Op]), step.Args)
		cmd, err := catalog.Build(step.Op, args)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func mergeConfig(defaults, override map[string]any) map[string]any {
	switch {
	case override == nil && defaults == nil:
		return nil
	case override == nil:
		return copyMap(defaults)
	case defaults == nil:
		return copyMap(override)
	}
	return mergeMaps(defaults, override)
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := copyMap(base)
	for key, value := range override {
		overrideMap, ok := value.(map[string]any)
		if !ok {
			out[key] = value
			continue
		}

		baseMap, ok := out[key].(map[string]any)
		if !ok {
			out[key] = copyMap(overrideMap)
			continue
		}
		out[key] = mergeMaps(baseMap, overrideMap)
	}
	return out
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
