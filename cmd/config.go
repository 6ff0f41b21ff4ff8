package cmd

import (
	"fmt"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		fmt.Println(sectionStyle.Render("⚙️  Settings"))
		fmt.Println(idStyle.Render(a.cfgPath))
		fmt.Println()
		for _, key := range config.Keys {
			value, _ := a.cfg.Get(key)
			if value == "" {
				value = dateStyle.Render("(unset)")
			}
			fmt.Printf("  %-20s %s\n", titleStyle.Render(key), value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting in the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		// Start from the file alone so environment overrides are not written back
		fileCfg, err := config.LoadFile(a.cfgPath)
		if err != nil {
			return err
		}
		if err := fileCfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := fileCfg.Save(a.cfgPath); err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Set %s = %s", args[0], args[1]))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config, sessions and secrets file paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		fmt.Printf("config:   %s\n", a.cfgPath)
		fmt.Printf("sessions: %s\n", a.paths.SessionsPath())
		fmt.Printf("secrets:  %s\n", a.paths.SecretsPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}
