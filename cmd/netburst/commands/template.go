package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/routelab/netburst/internal/config"
)

// templateCmd emits ready-to-edit YAML configuration presets.
func templateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template [name]",
		Short: "Print a configuration template (or list available templates)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				for _, name := range config.Templates() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			cfg, err := config.Template(args[0])
			if err != nil {
				return err
			}
			data, err := config.EncodeYAML(cfg)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}
