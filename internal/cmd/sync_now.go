package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncNowCmd = &cobra.Command{
	Use:   "sync-now",
	Short: "Run a single aggregation cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSheriff()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		events := s.Subscribe()
		s.RunOnce(cmd.Context())

		// RunOnce runs the cycle synchronously on this goroutine, so by
		// the time it returns every event it emitted that fit in the
		// subscription's buffer is already sitting in the channel (events
		// past the buffer's capacity were dropped); drain it without
		// blocking rather than racing a printer goroutine against process
		// exit.
		for {
			select {
			case ev := <-events:
				fmt.Printf("[%s] context=%s\n", ev.Kind, ev.Context)
			default:
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(syncNowCmd)
}
