package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sheriff aggregation daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSheriff()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		events := s.Subscribe()
		go func() {
			for ev := range events {
				fmt.Printf("[%s] context=%s\n", ev.Kind, ev.Context)
			}
		}()

		return s.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
