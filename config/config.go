// Package config resolves credentials and runtime settings from viper
// (flags, env, config file, .env).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/replyhawk/replyhawk/internal/pathutil"
)

var ErrInvalidCredentials = errors.New("config: invalid credentials")

// Credentials holds the platform API key set. Either a bearer token or the
// complete OAuth1 quadruple must be present; Validate enforces that at
// startup so a half-configured bot fails fast instead of mid-poll.
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

func (c Credentials) Validate() error {
	if c.BearerToken != "" {
		return nil
	}
	missing := []string{}
	if c.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if c.APISecret == "" {
		missing = append(missing, "api_secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "access_token_secret")
	}
	if len(missing) == 0 {
		return nil
	}
	if len(missing) == 4 {
		return fmt.Errorf("%w: set twitter.bearer_token or the full api_key/api_secret/access_token/access_token_secret set", ErrInvalidCredentials)
	}
	return fmt.Errorf("%w: missing %s (or set twitter.bearer_token instead)", ErrInvalidCredentials, strings.Join(missing, ", "))
}

// Token returns the credential the wire client authenticates with: the
// bearer token when present, otherwise the access token.
func (c Credentials) Token() string {
	if c.BearerToken != "" {
		return c.BearerToken
	}
	return c.AccessToken
}

// Settings is the resolved runtime configuration for the watch daemon.
type Settings struct {
	StateDir        string
	RepliesPath     string
	ActivityLogPath string
	PollInterval    time.Duration
	ControlBind     string
	ControlPort     int
}

func (s Settings) ControlAddr() string {
	return fmt.Sprintf("%s:%d", s.ControlBind, s.ControlPort)
}

// LoadDotenv merges a .env file from the working directory into the process
// environment before viper reads it. A missing file is fine.
func LoadDotenv() {
	_ = godotenv.Load()
}

// CredentialsFromViper reads the twitter.* key set. Pass nil for the global
// viper.
func CredentialsFromViper(v *viper.Viper) Credentials {
	if v == nil {
		v = viper.GetViper()
	}
	return Credentials{
		APIKey:            strings.TrimSpace(v.GetString("twitter.api_key")),
		APISecret:         strings.TrimSpace(v.GetString("twitter.api_secret")),
		AccessToken:       strings.TrimSpace(v.GetString("twitter.access_token")),
		AccessTokenSecret: strings.TrimSpace(v.GetString("twitter.access_token_secret")),
		BearerToken:       strings.TrimSpace(v.GetString("twitter.bearer_token")),
	}
}

// SettingsFromViper resolves paths (with ~ expansion) and loop settings.
func SettingsFromViper(v *viper.Viper) (Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}
	stateDir := pathutil.ExpandHomePath(v.GetString("file_state_dir"))
	if stateDir == "" {
		return Settings{}, errors.New("config: file_state_dir is empty")
	}

	s := Settings{
		StateDir:        stateDir,
		RepliesPath:     filepath.Join(stateDir, "replies.json"),
		ActivityLogPath: filepath.Join(stateDir, "activity.log"),
		PollInterval:    v.GetDuration("poll.interval"),
		ControlBind:     strings.TrimSpace(v.GetString("control.bind")),
		ControlPort:     v.GetInt("control.port"),
	}
	if raw := pathutil.ExpandHomePath(v.GetString("replies_path")); raw != "" {
		s.RepliesPath = raw
	}
	if raw := pathutil.ExpandHomePath(v.GetString("activity_log_path")); raw != "" {
		s.ActivityLogPath = raw
	}
	return s, nil
}
