package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/edgefip/cmd/edgefip/handlers"
)

// Pairs returns the pairs command.
func Pairs(global *globalFlags) *cobra.Command {
	var configPath string
	var network string

	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "List external/internal address pairs of the gateway",
		Long: `Pairs lists every external/internal address pair mapped by a NAT rule
of the configured gateway.

With --network it also reports whether any NAT rule is bound to that
network.

Examples:
  edgefip pairs
  edgefip pairs --network ext-net`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Pairs(cmd.Context(), global.options(configPath), network, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: edgefip.yaml)")
	cmd.Flags().StringVar(&network, "network", "", "Report whether NAT rules are bound to this network")

	return cmd
}

// FreeIP returns the free-ip command.
func FreeIP(global *globalFlags) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "free-ip",
		Short: "Print the first unassigned public address of the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.FreeIP(cmd.Context(), global.options(configPath), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: edgefip.yaml)")

	return cmd
}
