// feedctl runs the Optimist Daily aggregation engine from the command line.
//
// Usage:
//
//	feedctl fetch --category Sports      # run one cycle and print the feed
//	feedctl plan --search "mars rover"   # show provider requests without calling them
//	feedctl prefs get --user 1           # show stored category preferences
//	feedctl prefs set --user 1 Sports Health
//	feedctl version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "feedctl",
		Short:        "Optimist Daily news aggregation CLI",
		Long:         "feedctl plans, runs and inspects multi-provider news aggregation cycles.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "optimist.yaml", "path to the YAML config file")

	rootCmd.AddCommand(fetchCmd(&configPath))
	rootCmd.AddCommand(planCmd(&configPath))
	rootCmd.AddCommand(prefsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feedctl %s\n", version)
		},
	}
}
