// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/imamik/edgefip/cmd/edgefip/handlers"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	logLevel    string
	metricsFile string
}

// Root returns the root command for the edgefip CLI.
//
// The root command installs the logger into the command context before any
// subcommand runs.
func Root() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "edgefip",
		Short:         "Manage floating IPs on vCloud Director edge gateways",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(flags.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(logr.NewContext(cmd.Context(), logger))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error or a verbosity number")
	cmd.PersistentFlags().StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	cmd.AddCommand(Connect(flags))
	cmd.AddCommand(Disconnect(flags))
	cmd.AddCommand(Pairs(flags))
	cmd.AddCommand(FreeIP(flags))
	cmd.AddCommand(Version())

	return cmd
}

func (f *globalFlags) options(configPath string) handlers.Options {
	return handlers.Options{ConfigPath: configPath, MetricsFile: f.metricsFile}
}
