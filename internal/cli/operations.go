package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tpodg/fleetadmin/internal/registry"
	"github.com/tpodg/fleetadmin/internal/server"
)

func newOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the supported operations and protocols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Default()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tPROTOCOLS")
			for _, op := range reg.Operations() {
				legacy, rest := reg.Supports(op)
				var gens []string
				if legacy {
					gens = append(gens, string(server.Legacy))
				}
				if rest {
					gens = append(gens, string(server.REST))
				}
				fmt.Fprintf(w, "%s\t%s\n", op, strings.Join(gens, ","))
			}
			return w.Flush()
		},
	}
}
