package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information set by the build process.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of kubeboot",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kubeboot version: %s\n", Version)
		fmt.Printf("Git Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", Date)
	},
}
