package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/replyhawk/replyhawk/activity"
	"github.com/replyhawk/replyhawk/config"
)

func newPostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Post a standalone status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newPlatformClient()
			if err != nil {
				return err
			}
			settings, err := config.SettingsFromViper(nil)
			if err != nil {
				return err
			}
			recorder, err := activity.NewDurableRecorder(settings.ActivityLogPath)
			if err != nil {
				return err
			}
			defer func() { _ = recorder.Close() }()

			text := strings.Join(args, " ")
			id, err := client.PostStatus(cmd.Context(), text)
			if err != nil {
				recorder.Recordf(activity.KindError, "manual post failed: %v", err)
				return err
			}
			recorder.Recordf(activity.KindSuccess, "posted status %s", id)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "posted %s\n", id)
			return nil
		},
	}
}
