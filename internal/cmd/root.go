// Package cmd provides the allbeads CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "allbeads",
	Short:   "Federate beads across many git repositories",
	Version: Version,
	Long: `allbeads aggregates bead issue-trackers across many repositories
into one federated graph, syncing shadow beads for cross-repo
dependencies and external trackers (JIRA, GitHub Issues).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default ~/.config/allbeads/config.toml)")
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
