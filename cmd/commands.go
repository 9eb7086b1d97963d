// File: cmd/commands.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autopilot-cli/internal/commands"
	"github.com/xkilldash9x/autopilot-cli/internal/commands/builtin"
	"github.com/xkilldash9x/autopilot-cli/internal/observability"
)

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands the agent may choose from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			registry := commands.NewRegistry(observability.GetLogger())
			if err := builtin.Register(registry, cfg.Commands(), observability.GetLogger()); err != nil {
				return err
			}
			for i, d := range registry.Descriptors() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, d.Signature())
			}
			return nil
		},
	}
}
