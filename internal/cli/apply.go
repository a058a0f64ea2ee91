package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tpodg/fleetadmin/internal/app"
	"github.com/tpodg/fleetadmin/internal/config"
	"github.com/tpodg/fleetadmin/internal/plan"
	"github.com/tpodg/fleetadmin/internal/result"
)

func newApplyCmd(root *rootOptions) *cobra.Command {
	var servers []string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the configured commands to servers",
		Long: `Run each server's configured commands in order. A server stops at its first
failing command; other servers continue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fleetApp := getApp(cmd)
			fleetApp.Logger.Info("Starting apply")

			if len(fleetApp.Config.Servers) == 0 {
				fleetApp.Logger.Warn("No servers provided for apply")
				return nil
			}

			entries := fleetApp.Config.Servers
			if len(servers) > 0 {
				entries = nil
				for _, name := range servers {
					s, ok := fleetApp.Config.Server(name)
					if !ok {
						return fmt.Errorf("unknown server %q", name)
					}
					entries = append(entries, s)
				}
			}

			reports, status := applyServers(cmd.Context(), fleetApp, entries)
			if err := writeReports(cmd.OutOrStdout(), root.output, reports); err != nil {
				return err
			}
			return verdictError(status)
		},
	}
	cmd.Flags().StringSliceVar(&servers, "server", nil, "limit to the named servers (repeatable; default all)")
	return cmd
}

func applyServers(ctx context.Context, fleetApp *app.App, entries []config.ServerConfig) ([]report, result.Status) {
	var g errgroup.Group
	if limit := fleetApp.Config.Concurrency; limit > 0 {
		g.SetLimit(limit)
	}

	tracker := result.NewTracker()
	perServer := make([][]report, len(entries))
	runner := plan.NewRunner(fleetApp.Dispatcher, fleetApp.Logger)

	for i, entry := range entries {
		g.Go(func() error {
			perServer[i] = applyServer(ctx, fleetApp, runner, entry, tracker)
			return nil
		})
	}
	_ = g.Wait()

	var reports []report
	for _, rs := range perServer {
		reports = append(reports, rs...)
	}
	return reports, tracker.Overall()
}

func applyServer(ctx context.Context, fleetApp *app.App, runner *plan.Runner, entry config.ServerConfig, tracker *result.Tracker) []report {
	srv, err := entry.Descriptor()
	if err != nil {
		tracker.Signal(entry.Name, result.StatusError)
		return []report{{Server: entry.Name, Status: result.StatusError, Message: err.Error()}}
	}
	logger := fleetApp.Logger.With("server", srv.ID())

	if len(entry.Commands) == 0 {
		logger.Info("No commands to apply for server")
		return nil
	}

	cmds, err := plan.Build(fleetApp.Config.Defaults, entry.Commands)
	if err != nil {
		logger.Error("Failed to plan commands", "error", err)
		tracker.Signal(srv.ID(), result.StatusError)
		return []report{{Server: srv.ID(), Status: result.StatusError, Message: err.Error()}}
	}

	results, err := runner.Run(ctx, srv, cmds...)
	reports := make([]report, 0, len(cmds))
	for i, res := range results {
		tracker.Signal(srv.ID(), res.Status)
		reports = append(reports, newReport(srv.ID(), cmds[i].Operation(), res))
	}
	if err != nil {
		logger.Error("Failed to apply server", "error", err)
		if !errors.Is(err, plan.ErrStepFailed) {
			tracker.Signal(srv.ID(), result.StatusError)
			reports = append(reports, report{Server: srv.ID(), Operation: cmds[len(results)].Operation(), Status: result.StatusError, Message: err.Error()})
		}
		return reports
	}

	logger.Info("Server applied successfully", "commands", len(cmds))
	return reports
}
