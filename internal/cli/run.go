package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tpodg/fleetadmin/internal/command/catalog"
	"github.com/tpodg/fleetadmin/internal/dispatch"
)

type runOptions struct {
	target     string
	name       string
	args       []string
	properties []string
	servers    []string
	timeout    time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <operation>",
		Short: "Run one operation on the selected servers",
		Long: `Build an operation from flags and dispatch it to every selected server
concurrently. The command exits non-zero unless every server reports SUCCESS.`,
		Example: `  fleetadmin run version
  fleetadmin run deploy --target cluster1 --name shop --arg path=/srv/shop.war --property keepSessions=true
  fleetadmin run get --arg pattern='configs.config.server-config.*' -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fleetApp := getApp(cmd)

			cmdArgs, err := opts.commandArgs()
			if err != nil {
				return err
			}
			command, err := catalog.Build(args[0], cmdArgs)
			if err != nil {
				return err
			}

			servers, err := selectServers(fleetApp.Config, opts.servers)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				return fmt.Errorf("no servers configured")
			}

			var callOpts []dispatch.CallOption
			if opts.timeout > 0 {
				callOpts = append(callOpts, dispatch.Timeout(opts.timeout))
			}

			fleetApp.Logger.Debug("Running command", "command", command.String(), "servers", len(servers))
			reports, status := runFleet(cmd.Context(), fleetApp.Dispatcher, servers, command, fleetApp.Config.Concurrency, callOpts...)
			if err := writeReports(cmd.OutOrStdout(), root.output, reports); err != nil {
				return err
			}
			return verdictError(status)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.target, "target", "", "target cluster, instance or config")
	flags.StringVar(&opts.name, "name", "", "application or resource name")
	flags.StringArrayVar(&opts.args, "arg", nil, "operation argument as key=value (repeatable)")
	flags.StringArrayVar(&opts.properties, "property", nil, "command property as key=value (repeatable)")
	flags.StringSliceVar(&opts.servers, "server", nil, "limit to the named servers (repeatable; default all)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-server timeout (default from config)")
	return cmd
}

// commandArgs assembles the catalog args. Values "true" and "false" become booleans.
func (o *runOptions) commandArgs() (map[string]any, error) {
	args := make(map[string]any)
	for _, raw := range o.args {
		key, value, err := splitPair(raw)
		if err != nil {
			return nil, err
		}
		args[key] = scalar(value)
	}
	if len(o.properties) > 0 {
		props := make(map[string]any, len(o.properties))
		for _, raw := range o.properties {
			key, value, err := splitPair(raw)
			if err != nil {
				return nil, err
			}
			props[key] = value
		}
		args["properties"] = props
	}
	if o.target != "" {
		args["target"] = o.target
	}
	if o.name != "" {
		args["name"] = o.name
	}
	return args, nil
}

func splitPair(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid argument %q, expected key=value", raw)
	}
	return key, value, nil
}

func scalar(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	default:
		return value
	}
}
