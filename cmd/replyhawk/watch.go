package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replyhawk/replyhawk/activity"
	"github.com/replyhawk/replyhawk/config"
	"github.com/replyhawk/replyhawk/control"
	"github.com/replyhawk/replyhawk/engine"
	"github.com/replyhawk/replyhawk/internal/logutil"
	"github.com/replyhawk/replyhawk/platform/twitter"
	"github.com/replyhawk/replyhawk/rules"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the mention poll loop and the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			settings, err := config.SettingsFromViper(nil)
			if err != nil {
				return err
			}
			interval := flagOrViperDuration(cmd, "interval", "poll.interval")

			client, err := newPlatformClient()
			if err != nil {
				return err
			}
			store := rules.NewStore(settings.RepliesPath)
			recorder, err := activity.NewDurableRecorder(settings.ActivityLogPath)
			if err != nil {
				return err
			}
			defer func() { _ = recorder.Close() }()

			eng := engine.New(client, store, recorder, engine.Options{
				Interval: interval,
				Logger:   logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := eng.Start(ctx); err != nil {
				return err
			}
			defer eng.Stop()

			if !flagOrViperBool(cmd, "no-control", "") && viper.GetBool("control.enabled") {
				addr := flagOrViperString(cmd, "listen", "")
				if addr == "" {
					addr = settings.ControlAddr()
				}
				srv := control.NewServer(addr, eng, store, recorder, logger)
				return srv.Run(ctx)
			}

			logger.Info("watching", "interval", interval.String(), "replies", store.Path())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().Duration("interval", 30*time.Second, "Delay between mention poll cycles.")
	cmd.Flags().Bool("no-control", false, "Disable the control HTTP API.")
	cmd.Flags().String("listen", "", "Control API listen address (overrides control.bind/control.port).")

	return cmd
}

// newPlatformClient validates credentials and builds the wire client.
func newPlatformClient() (*twitter.Client, error) {
	creds := config.CredentialsFromViper(nil)
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	client, err := twitter.New(creds.Token(), twitter.Options{
		BaseURL: viper.GetString("twitter.base_url"),
	})
	if err != nil {
		return nil, fmt.Errorf("build platform client: %w", err)
	}
	return client, nil
}
