package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/routelab/netburst/internal/version"
)

// versionCmd prints the build version information.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), appversion.Full("netburst"))
		},
	}
}
