package main

import (
	"fmt"
	"time"

	"restobook/internal/export"
	"restobook/internal/logging"

	"github.com/spf13/cobra"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one day's table schedule to an xlsx file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(root, "cli")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			loc, err := cfg.App.Location()
			if err != nil {
				return err
			}
			day := time.Now().In(loc)
			if date != "" {
				day, err = time.ParseInLocation(time.DateOnly, date, loc)
				if err != nil {
					return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
				}
			}

			ctx := contextOrBackground(cmd.Context())
			stack, err := buildScheduler(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			path, err := export.New(stack.bookings, cfg.Exports.Path, logging.Component(logger, "export")).ExportDay(ctx, day)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "operating day YYYY-MM-DD (default today)")
	return cmd
}
