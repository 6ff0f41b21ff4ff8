package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/export"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	sessionID string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions to file",
	Long: `Export saved chat sessions to various formats (jsonl, md, yaml, json).

Exports every session by default, or a single one with --session-id.
The json format is the interchange format read by 'chat-session import'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		sessions := a.store.LoadAll()
		if sessionID != "" {
			session, err := findSession(sessions, sessionID)
			if err != nil {
				return fmt.Errorf("%w (use 'chat-session list' to see available sessions)", err)
			}
			sessions = []*internal.Session{session}
		}
		if len(sessions) == 0 {
			internal.PrintInfo("No sessions to export")
			return nil
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		var failed int
		ctx := context.Background()
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d session(s) to %s", len(sessions), outputDir), func() error {
			for _, session := range sessions {
				if err := exportSession(exporter, format, session, outputDir); err != nil {
					internal.LogError("%v", err)
					failed++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d session(s) failed to export", failed, len(sessions))
		}
		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", len(sessions), outputDir))
		return nil
	},
}

func exportSession(exporter export.Exporter, format string, session *internal.Session, dir string) error {
	path := filepath.Join(dir, fmt.Sprintf("session_%s.%s", session.ID, exporter.Extension()))

	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := exporter.Export(session, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats, ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&sessionID, "session-id", "", "Export a specific session by ID")
}
