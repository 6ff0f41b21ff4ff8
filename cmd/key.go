package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored API key",
	Long: `Manage the API key kept in the local secret store.
The CHAT_SESSION_API_KEY environment variable takes precedence over the stored key.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store the API key",
	Long:  `Store the API key. Without an argument the key is read from the first line of stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			if internal.IsTerminal() {
				fmt.Fprint(os.Stderr, "API key: ")
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read key: %w", err)
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("API key cannot be empty")
		}

		secrets, err := openSecrets()
		if err != nil {
			return err
		}
		defer secrets.Close()

		if err := secrets.Set(internal.SecretService, internal.SecretAccount, key); err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("API key stored (%s)", internal.RedactSecret(key)))
		return nil
	},
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := openSecrets()
		if err != nil {
			return err
		}
		defer secrets.Close()

		if err := secrets.Delete(internal.SecretService, internal.SecretAccount); err != nil {
			return err
		}
		internal.PrintSuccess("API key removed")
		return nil
	},
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		if env := os.Getenv("CHAT_SESSION_API_KEY"); env != "" {
			internal.PrintInfo(fmt.Sprintf("Using CHAT_SESSION_API_KEY (%s)", internal.RedactSecret(env)))
			return nil
		}

		secrets, err := openSecrets()
		if err != nil {
			return err
		}
		defer secrets.Close()

		key, err := secrets.Get(internal.SecretService, internal.SecretAccount)
		switch {
		case errors.Is(err, internal.ErrSecretNotFound):
			internal.PrintWarning("No API key configured. Run `chat-session key set`.")
			return nil
		case err != nil:
			return err
		}
		internal.PrintInfo(fmt.Sprintf("Using stored key (%s)", internal.RedactSecret(key)))
		return nil
	},
}

func openSecrets() (*internal.SQLiteSecretStore, error) {
	paths, err := internal.GetDataPaths(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get data paths: %w", err)
	}
	return internal.OpenSecretStore(paths.SecretsPath())
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	keyCmd.AddCommand(keyStatusCmd)
}
