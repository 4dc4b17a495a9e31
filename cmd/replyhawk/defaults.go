package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)

	// Global
	viper.SetDefault("file_state_dir", "~/.replyhawk")
	viper.SetDefault("replies_path", "")
	viper.SetDefault("activity_log_path", "")

	// Platform credentials
	viper.SetDefault("twitter.api_key", "")
	viper.SetDefault("twitter.api_secret", "")
	viper.SetDefault("twitter.access_token", "")
	viper.SetDefault("twitter.access_token_secret", "")
	viper.SetDefault("twitter.bearer_token", "")
	viper.SetDefault("twitter.base_url", "")

	// Poll loop
	viper.SetDefault("poll.interval", 30*time.Second)

	// Control surface
	viper.SetDefault("control.enabled", true)
	viper.SetDefault("control.bind", "127.0.0.1")
	viper.SetDefault("control.port", 8990)
}
