package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	cmd := newInitCmd()
	cmd.SetArgs([]string{dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("init error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("ReadFile(config.yaml) error = %v", err)
	}
	var cfg map[string]any
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("config.yaml is not YAML: %v", err)
	}
	if _, ok := cfg["twitter"]; !ok {
		t.Fatalf("config.yaml missing twitter section: %v", cfg)
	}

	replies, err := os.ReadFile(filepath.Join(dir, "replies.json"))
	if err != nil {
		t.Fatalf("ReadFile(replies.json) error = %v", err)
	}
	if string(replies) != "{}\n" {
		t.Fatalf("replies.json = %q", replies)
	}

	// A second init must refuse to clobber the config.
	cmd = newInitCmd()
	cmd.SetArgs([]string{dir})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Fatalf("second init succeeded, want already-exists error")
	}
}
