package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/replyhawk/replyhawk/config"
	"github.com/replyhawk/replyhawk/rules"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage username → reply mappings",
	}
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesRmCmd())
	cmd.AddCommand(newRulesLsCmd())
	cmd.AddCommand(newRulesExportCmd())
	cmd.AddCommand(newRulesImportCmd())
	return cmd
}

func openRuleStore() (*rules.Store, error) {
	settings, err := config.SettingsFromViper(nil)
	if err != nil {
		return nil, err
	}
	return rules.NewStore(settings.RepliesPath), nil
}

func newRulesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <username> <reply text>",
		Short: "Add or update a reply rule",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore()
			if err != nil {
				return err
			}
			username := args[0]
			text := strings.Join(args[1:], " ")
			if err := store.Upsert(cmd.Context(), username, text); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved rule for @%s\n", rules.NormalizeUsername(username))
			return nil
		},
	}
}

func newRulesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <username>",
		Short: "Remove a reply rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore()
			if err != nil {
				return err
			}
			if err := store.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed rule for @%s\n", rules.NormalizeUsername(args[0]))
			return nil
		},
	}
}

func newRulesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List reply rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore()
			if err != nil {
				return err
			}
			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no rules")
				return nil
			}
			for _, rule := range list {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "@%s\t%s\n", rule.Username, rule.ReplyText)
			}
			return nil
		},
	}
}

func newRulesExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the reply mapping as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore()
			if err != nil {
				return err
			}
			data, err := store.ExportJSON(cmd.Context())
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("output")
			if strings.TrimSpace(out) == "" {
				_, _ = cmd.OutOrStdout().Write(data)
				return nil
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the export to a file instead of stdout.")
	return cmd
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the reply mapping from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if err := store.Replace(cmd.Context(), raw); err != nil {
				return err
			}
			mapping, err := store.All(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", len(mapping))
			return nil
		},
	}
}
