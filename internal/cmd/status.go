package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbeads/allbeads/internal/cache"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local cache's aggregation status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := cache.Open(cache.Config{Path: cfg.CachePath})
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		stats, err := c.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("beads:       %d\n", stats.BeadCount)
		fmt.Printf("rigs:        %d\n", stats.RigCount)
		fmt.Printf("last update: %d\n", stats.LastUpdate)
		fmt.Printf("age:         %s\n", stats.Age)
		fmt.Printf("expired:     %t\n", stats.Expired)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
