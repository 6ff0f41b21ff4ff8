package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a session exported as JSON",
	Long: `Import a single session written by 'chat-session export --format json'.
A session whose ID already exists is imported under a new ID.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		eng, err := a.newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		session, err := eng.ImportSession(data)
		if err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Imported %q as %s (%d turns)", session.Title, session.ID, len(session.Turns)))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		eng, err := a.newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		session, err := findSession(eng.Sessions(), args[0])
		if err != nil {
			return err
		}
		if err := eng.DeleteSession(session.ID); err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Deleted %q", session.Title))
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <session-id> <title>",
	Short: "Rename a saved session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		eng, err := a.newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		session, err := findSession(eng.Sessions(), args[0])
		if err != nil {
			return err
		}
		if err := eng.RenameSession(session.ID, args[1]); err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Renamed %s to %q", session.ID[:min(8, len(session.ID))], args[1]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(renameCmd)
}
