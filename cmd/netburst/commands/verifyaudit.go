package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/routelab/netburst/internal/audit"
)

// verifyAuditCmd walks an audit log's hash chain and reports whether it
// is intact.
func verifyAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-audit [path]",
		Short: "Verify the tamper-evident hash chain of an audit log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := audit.DefaultLogPath
			if len(args) == 1 {
				path = args[0]
			}

			n, err := audit.VerifyIntegrity(path)
			if err != nil {
				return fmt.Errorf("after %d intact entries: %w", n, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, chain intact\n", path, n)
			return nil
		},
	}
}
