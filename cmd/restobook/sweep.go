package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(root *rootOptions) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Drop expired suggestion holds, optionally purge finished bookings",
		Long: "Runs one expiry sweep against the store, the same pass the scheduler runs every\n" +
			"sweeper.interval. Use it while the scheduler is stopped: a running scheduler keeps\n" +
			"the swept slots held in its graph until its next rebuild.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(root, "cli")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			ctx := contextOrBackground(cmd.Context())
			stack, err := buildScheduler(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			n, err := stack.bookings.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired holds removed: %d\n", n)

			if cleanup {
				if err := stack.bookings.Cleanup(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "finished bookings purged")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "also delete bookings that ended before now")
	return cmd
}
