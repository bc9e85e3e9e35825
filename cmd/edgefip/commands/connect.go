package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/edgefip/cmd/edgefip/handlers"
)

type interfaceFlags struct {
	configPath string
	id         string
	workload   string
}

func (f *interfaceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (default: edgefip.yaml)")
	cmd.Flags().StringVar(&f.id, "interface", "", "Interface ID the runtime state is stored under (required)")
	cmd.Flags().StringVar(&f.workload, "workload", "", "Workload (vApp name or server ID) the interface belongs to (required)")
	_ = cmd.MarkFlagRequired("interface")
	_ = cmd.MarkFlagRequired("workload")
}

func (f *interfaceFlags) request() handlers.InterfaceRequest {
	return handlers.InterfaceRequest{ID: f.id, Workload: f.workload}
}

// Connect returns the connect command.
//
// The connect command binds a public address of the configured gateway to a
// workload by creating a SNAT/DNAT rule pair.
func Connect(global *globalFlags) *cobra.Command {
	flags := &interfaceFlags{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Bind a floating IP to a workload",
		Long: `Connect binds a public address of the edge gateway to a workload.

The address is floating_ip.public_ip from the configuration, the address
already recorded for the interface, or the first free address of the
gateway. A SNAT rule and a DNAT rule are created and, when
floating_ip.commit is set, the gateway configuration is saved.

The assigned address is printed on success. When the gateway is busy the
command prints the retry delay and exits with code 75.

Example:
  edgefip connect -c edgefip.yaml --interface nic-1 --workload web-vapp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Connect(cmd.Context(), global.options(flags.configPath), flags.request(), cmd.OutOrStdout())
		},
	}
	flags.bind(cmd)

	return cmd
}

// Disconnect returns the disconnect command.
func Disconnect(global *globalFlags) *cobra.Command {
	flags := &interfaceFlags{}

	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Release the floating IP of a workload",
		Long: `Disconnect removes the SNAT/DNAT rule pair binding the interface's
public address to its workload and clears the recorded address.

Nothing is changed when no address is recorded or the pair is already gone.

Example:
  edgefip disconnect -c edgefip.yaml --interface nic-1 --workload web-vapp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Disconnect(cmd.Context(), global.options(flags.configPath), flags.request(), cmd.OutOrStdout())
		},
	}
	flags.bind(cmd)

	return cmd
}
