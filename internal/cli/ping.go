package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tpodg/fleetadmin/internal/command/catalog"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/plan"
	"github.com/tpodg/fleetadmin/internal/result"
	"github.com/tpodg/fleetadmin/internal/server"
)

const pingTimeout = 15 * time.Second

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Verify connection to servers",
		Long:  `Query the version of every configured server to verify that its admin endpoint is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fleetApp := getApp(cmd)
			fleetApp.Logger.Info("Starting connection verification")

			servers, err := selectServers(fleetApp.Config, nil)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fleetApp.Logger.Warn("No servers configured")
				return nil
			}

			status := verifyServers(cmd.Context(), fleetApp.Logger, fleetApp.Dispatcher, servers, fleetApp.Config.Concurrency)
			return verdictError(status)
		},
	}
}

func verifyServers(ctx context.Context, logger *slog.Logger, d plan.Dispatcher, servers []server.Descriptor, limit int) result.Status {
	versionCmd, err := catalog.Version()
	if err != nil {
		logger.Error("Failed to build version command", "error", err)
		return result.StatusError
	}

	for _, srv := range servers {
		logger.Info("Checking server", "name", srv.ID(), "address", srv.Address(), "protocol", string(srv.Generation()))
	}

	reports, status := runFleet(ctx, d, servers, versionCmd, limit, dispatch.Timeout(pingTimeout))
	for _, r := range reports {
		switch r.Status {
		case result.StatusSuccess:
			logger.Info("Verification successful", "server", r.Server, "version", r.Value)
		case result.StatusError:
			logger.Error("Verification failed", "server", r.Server, "error", r.Message)
		default:
			logger.Warn("Verification inconclusive", "server", r.Server, "message", r.Message)
		}
	}
	return status
}
