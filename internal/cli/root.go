package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tpodg/fleetadmin/internal/app"
	"github.com/tpodg/fleetadmin/internal/config"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/metrics"
	"github.com/tpodg/fleetadmin/internal/tracing"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type contextKey string

const appKey contextKey = "app"

type rootOptions struct {
	configFile   string
	output       string
	metricsFile  string
	otlpEndpoint string
	otlpInsecure bool

	tracing *tracing.Provider
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "fleetadmin",
		Short: "fleetadmin administers a fleet of application servers",
		Long: `fleetadmin sends administrative commands to application servers over
their admin endpoint, speaking the legacy or the REST protocol depending on
the server version.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}

			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			provider, err := tracing.Init(cmd.Context(), tracing.Config{
				ServiceName:    "fleetadmin",
				ServiceVersion: Version,
				Endpoint:       opts.otlpEndpoint,
				Insecure:       opts.otlpInsecure,
			})
			if err != nil {
				return err
			}
			opts.tracing = provider

			fleetApp := app.NewWithOutput(cfg, cmd.ErrOrStderr(), dispatch.WithTracer(provider.Tracer()))
			ctx := context.WithValue(cmd.Context(), appKey, fleetApp)
			cmd.SetContext(ctx)

			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s)", config.DefaultConfigFileName))
	flags.StringVarP(&opts.output, "output", "o", outputText, "output format: text, yaml or json")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write a Prometheus textfile snapshot on exit")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector for traces, e.g. localhost:4318")
	flags.BoolVar(&opts.otlpInsecure, "otlp-insecure", false, "send traces without TLS")

	rootCmd.AddCommand(
		newPingCmd(),
		newRunCmd(opts),
		newApplyCmd(opts),
		newOperationsCmd(),
	)
	return rootCmd, opts
}

// finish flushes traces and writes the metrics snapshot. It runs whether or
// not the command succeeded.
func (o *rootOptions) finish(ctx context.Context) error {
	var errs []error
	if o.tracing != nil {
		if err := o.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}
	if o.metricsFile != "" {
		if err := metrics.WriteTextfile(o.metricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd, opts := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if ferr := opts.finish(ctx); ferr != nil {
		fmt.Fprintln(stderr, "Error:", ferr)
		if err == nil {
			err = ferr
		}
	}
	return err
}

func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func getApp(cmd *cobra.Command) *app.App {
	if a, ok := cmd.Context().Value(appKey).(*app.App); ok {
		return a
	}
	return nil
}
