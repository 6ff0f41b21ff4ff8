package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/config"
	"github.com/iksnae/chat-session/internal/store"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that chat-session is configured and its data is readable",
	Long: `Check the health of chat-session by verifying:
  • Data directory detection
  • Config file validity
  • Session file readability
  • API key availability

This command is useful for debugging setup issues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(sectionStyle.Render("🔍 Chat Session Health Check"))
		fmt.Println()

		// Step 1: Detect paths
		fmt.Println(infoStyle.Render("Step 1: Detecting data paths..."))
		paths, err := internal.GetDataPaths(dataDir)
		if err != nil {
			fmt.Println(errorStyle.Render("❌ Failed to detect data paths:"), err)
			return err
		}
		fmt.Println(successStyle.Render("✅ Data paths detected"))
		if healthcheckVerbose {
			fmt.Printf("   Config dir: %s\n", paths.ConfigDir)
			fmt.Printf("   Data dir: %s\n", paths.DataDir)
		}
		fmt.Println()

		// Step 2: Load config
		fmt.Println(infoStyle.Render("Step 2: Loading config..."))
		cfgPath := configPath
		if cfgPath == "" {
			cfgPath = paths.ConfigPath()
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Println(errorStyle.Render("❌ Config is invalid:"), err)
			return err
		}
		fmt.Println(successStyle.Render("✅ Config loaded"))
		if healthcheckVerbose {
			fmt.Printf("   File: %s\n", cfgPath)
			fmt.Printf("   Endpoint: %s\n", cfg.Endpoint)
			fmt.Printf("   Model: %s\n", cfg.Model)
		}
		fmt.Println()

		// Step 3: Read sessions
		fmt.Println(infoStyle.Render("Step 3: Reading saved sessions..."))
		sessionCount := 0
		sessionsOK := true
		if !paths.SessionsFileExists() {
			fmt.Println(warningStyle.Render("⚠️  No session file yet"))
			if healthcheckVerbose {
				fmt.Printf("   Expected: %s\n", paths.SessionsPath())
				fmt.Println("   It is created after the first chat")
			}
		} else {
			sessionCount, err = store.NewFileStore(paths.SessionsPath()).Validate()
			if err != nil {
				sessionsOK = false
				fmt.Println(errorStyle.Render("❌ Session file is unreadable:"), err)
				fmt.Println("   It will be treated as empty and overwritten by the next save")
			} else {
				fmt.Println(successStyle.Render(fmt.Sprintf("✅ Found %d session(s)", sessionCount)))
			}
		}
		fmt.Println()

		// Step 4: API key
		fmt.Println(infoStyle.Render("Step 4: Checking API key..."))
		keyOK := true
		switch {
		case cfg.APIKey != "":
			fmt.Println(successStyle.Render("✅ API key set via CHAT_SESSION_API_KEY"))
		default:
			secrets, err := internal.OpenSecretStore(paths.SecretsPath())
			if err != nil {
				keyOK = false
				fmt.Println(errorStyle.Render("❌ Failed to open secret store:"), err)
				break
			}
			key, err := secrets.Get(internal.SecretService, internal.SecretAccount)
			_ = secrets.Close()
			switch {
			case errors.Is(err, internal.ErrSecretNotFound):
				keyOK = false
				fmt.Println(warningStyle.Render("⚠️  No API key configured"))
				fmt.Println("   Run `chat-session key set` or export CHAT_SESSION_API_KEY")
			case err != nil:
				keyOK = false
				fmt.Println(errorStyle.Render("❌ Failed to read API key:"), err)
			default:
				fmt.Println(successStyle.Render("✅ API key stored"))
				if healthcheckVerbose {
					fmt.Printf("   Key: %s\n", internal.RedactSecret(key))
				}
			}
		}
		fmt.Println()

		// Summary
		fmt.Println(sectionStyle.Render("📊 Summary"))
		fmt.Println()

		if sessionsOK && keyOK {
			fmt.Println(successStyle.Render("✅ Health check passed!"))
			fmt.Println(successStyle.Render(fmt.Sprintf("   • Sessions: %d found", sessionCount)))
			return nil
		}
		fmt.Println(errorStyle.Render("❌ Health check failed"))
		if !sessionsOK {
			fmt.Println("   • Session file cannot be read")
		}
		if !keyOK {
			fmt.Println("   • No usable API key")
		}
		return fmt.Errorf("health check failed")
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVar(&healthcheckVerbose, "details", false, "Show detailed diagnostic information")
}
