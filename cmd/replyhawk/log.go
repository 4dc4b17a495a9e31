package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replyhawk/replyhawk/activity"
	"github.com/replyhawk/replyhawk/config"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the most recent activity log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.SettingsFromViper(nil)
			if err != nil {
				return err
			}
			n := flagOrViperInt(cmd, "lines", "")
			lines, err := activity.TailFile(settings.ActivityLogPath, n)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no activity")
				return nil
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntP("lines", "n", activity.DefaultRecent, "How many log lines to show.")
	return cmd
}
