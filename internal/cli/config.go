package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage diffchat configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath(flagConfig)
		if err != nil {
			return fail(cmd, err)
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
			return nil
		}

		cfg := config.Default()
		cfg.Roles = map[string]string{
			"TechLead": "You are a tech lead reviewing changes to this feature. Be concise and concrete.",
		}
		if err := config.Save(cfg, path); err != nil {
			return fail(cmd, errors.Wrap(err, "writing config"))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (e.g. model, roles.QA, privacy.redact_secrets)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath(flagConfig)
		if err != nil {
			return fail(cmd, err)
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fail(cmd, err)
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}

		if err := config.Save(cfg, path); err != nil {
			return fail(cmd, errors.Wrap(err, "saving config"))
		}

		value := args[1]
		if args[0] == "openai_api_key" {
			value = cfg.Redacted().APIKey
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], value)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fail(cmd, err)
		}
		return writeJSON(cmd.OutOrStdout(), cfg.Redacted())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
