package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dataDir    string
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chat-session",
	Short: "Chat with an OpenAI-compatible model from the terminal",
	Long: `A CLI for streaming chat sessions against an OpenAI-compatible
chat completion endpoint (OpenRouter by default).

Replies stream token by token. Every conversation is saved locally and can be
resumed, renamed, exported or imported later.

Features:
  • Interactive chat with streamed replies and Ctrl+C to stop generating
  • File and image attachments
  • Optional web search with cited sources
  • Local session history, newest first
  • Export in multiple formats (JSON, JSONL, Markdown, YAML)

Quick Start:
  chat-session key set                   # Store your API key
  chat-session chat                      # Start chatting
  chat-session list                      # List saved sessions
  chat-session export <id> --format md   # Export a session as Markdown`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Custom data directory (holds config, sessions and secrets)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data dir>/config.yaml)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
