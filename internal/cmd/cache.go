package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allbeads/allbeads/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or manage the local aggregation cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached beads, rigs, and dependency records",
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

		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
