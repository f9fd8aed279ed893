package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/rulecheck/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage rulecheck configuration",
}

// configFile is the file config commands read and write.
func configFile() (string, error) {
	if flagConfigPath != "" {
		return flagConfigPath, nil
	}
	return config.ConfigPath()
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFile()
		if err != nil {
			return configErr(err)
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
			return nil
		}
		if err := config.Save(config.Default(), path); err != nil {
			return runtimeErr(fmt.Errorf("writing config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFile()
		if err != nil {
			return configErr(err)
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
				return configErr(err)
			}
			// No config file yet: start from defaults.
			cfg = config.Default()
		}
		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return configErr(err)
		}
		if err := cfg.Validate(); err != nil {
			return configErr(err)
		}
		if err := config.Save(cfg, path); err != nil {
			return runtimeErr(fmt.Errorf("saving config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfigPath, buildOverrides())
		if err != nil {
			return configErr(err)
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return runtimeErr(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
