package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/replyhawk/replyhawk/internal/fsstore"
	"github.com/replyhawk/replyhawk/internal/pathutil"
)

type configTemplate struct {
	Logging struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		AddSource bool   `yaml:"add_source"`
	} `yaml:"logging"`
	FileStateDir string `yaml:"file_state_dir"`
	Twitter      struct {
		APIKey            string `yaml:"api_key"`
		APISecret         string `yaml:"api_secret"`
		AccessToken       string `yaml:"access_token"`
		AccessTokenSecret string `yaml:"access_token_secret"`
		BearerToken       string `yaml:"bearer_token"`
	} `yaml:"twitter"`
	Poll struct {
		Interval string `yaml:"interval"`
	} `yaml:"poll"`
	Control struct {
		Enabled bool   `yaml:"enabled"`
		Bind    string `yaml:"bind"`
		Port    int    `yaml:"port"`
	} `yaml:"control"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize the state directory with config.yaml and an empty rule file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "~/.replyhawk"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			dir = pathutil.ExpandHomePath(dir)
			if strings.TrimSpace(dir) == "" {
				return fmt.Errorf("invalid dir")
			}
			dir = filepath.Clean(dir)

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfgPath := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			body, err := renderConfigTemplate(dir)
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, body, 0o644); err != nil {
				return err
			}

			repliesPath := filepath.Join(dir, "replies.json")
			if _, err := os.Stat(repliesPath); os.IsNotExist(err) {
				if err := fsstore.WriteTextAtomic(repliesPath, "{}\n", fsstore.FileOptions{}); err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", dir)
			return nil
		},
	}
}

func renderConfigTemplate(dir string) ([]byte, error) {
	var tpl configTemplate
	tpl.Logging.Level = "info"
	tpl.Logging.Format = "text"
	tpl.FileStateDir = filepath.ToSlash(dir)
	tpl.Poll.Interval = "30s"
	tpl.Control.Enabled = true
	tpl.Control.Bind = "127.0.0.1"
	tpl.Control.Port = 8990

	body, err := yaml.Marshal(tpl)
	if err != nil {
		return nil, fmt.Errorf("render config template: %w", err)
	}
	header := "# replyhawk configuration. Credentials can also come from the\n" +
		"# environment (REPLYHAWK_TWITTER_BEARER_TOKEN, ...) or a .env file.\n"
	return append([]byte(header), body...), nil
}
