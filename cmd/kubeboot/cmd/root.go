// Package cmd wires the kubeboot command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kubeboot/kubeboot/pkg/logger"
)

var (
	// Global flags
	verbosity     int
	assumeYesFlag bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kubeboot",
	Short: "kubeboot bootstraps highly available kubeadm clusters over SSH.",
	Long: `kubeboot is a command-line orchestrator that prepares a fleet of
machines, initializes the first control plane, joins the remaining masters
and workers, and applies post-install configuration, in a fixed phase
sequence with idempotent re-runs.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logOpts := logger.DefaultOptions()
		logOpts.ColorConsole = true
		switch {
		case verbosity >= 2:
			logOpts.ConsoleLevel = logger.DebugLevel
			logOpts.FileLevel = logger.DebugLevel
			logOpts.FileOutput = true
		case verbosity == 1:
			logOpts.ConsoleLevel = logger.DebugLevel
		}
		logger.Init(logOpts)
		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() error {
	defer logger.SyncGlobal()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase output verbosity (-v for debug, -vv to also write a debug log file)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYesFlag, "yes", "y", false, "Assume yes to all prompts and run non-interactively")
}
