package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var (
	limit int
	since string
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the turns of a saved session",
	Long:  `Display the turns of a saved chat session. The ID may be a unique prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		session, err := findSession(a.store.LoadAll(), args[0])
		if err != nil {
			return err
		}

		turns := session.Turns
		if since != "" {
			sinceTime, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
			turns = filterTurnsSince(turns, sinceTime)
		}

		displaySessionHeader(session)

		total := len(turns)
		if limit > 0 && limit < len(turns) {
			turns = turns[:limit]
		}
		for i, turn := range turns {
			displayTurn(i+1, turn, total)
		}

		if limit > 0 && limit < total {
			fmt.Println(lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more turn(s))", total-limit)))
		}
		return nil
	},
}

func filterTurnsSince(turns []internal.Turn, since time.Time) []internal.Turn {
	filtered := make([]internal.Turn, 0, len(turns))
	for _, turn := range turns {
		if !turn.CreatedAt.Before(since) {
			filtered = append(filtered, turn)
		}
	}
	return filtered
}

func displaySessionHeader(session *internal.Session) {
	if session == nil {
		return
	}
	fmt.Println(sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", session.Title)))

	metaParts := []string{
		fmt.Sprintf("ID: %s", session.ID),
		fmt.Sprintf("Created: %s", session.CreatedAt.Local().Format("2006-01-02 15:04")),
		fmt.Sprintf("Turns: %d", len(session.Turns)),
	}
	fmt.Println(sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Println()
}

func displayTurn(index int, turn internal.Turn, total int) {
	var style lipgloss.Style
	var label string

	switch turn.Role {
	case internal.RoleUser:
		style = userMessageStyle
		label = "👤 User"
	case internal.RoleAssistant:
		style = assistantMessageStyle
		label = "🤖 Assistant"
	default:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		label = fmt.Sprintf("🔧 %s", turn.Role)
	}

	header := style.Render(label) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if !turn.CreatedAt.IsZero() {
		header += " " + timestampStyle.Render(turn.CreatedAt.Local().Format("15:04:05"))
	}
	fmt.Println(header)

	for _, att := range turn.Attachments {
		fmt.Println(timestampStyle.Render(fmt.Sprintf("   📎 %s (%s, %d bytes)", att.Name, att.Kind, att.Size)))
	}

	content := strings.TrimSpace(turn.Content)
	if content != "" {
		fmt.Println(messageContentStyle.Render(wrapText(content, 80)))
	} else {
		fmt.Println(messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}

	for i, src := range turn.Sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Printf("   [%d] %s %s\n", i+1, title, sourceStyle.Render(src.URL))
	}
	if len(turn.Sources) > 0 {
		fmt.Println()
	}
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			switch {
			case len(currentLine)+len(word)+1 <= width && currentLine == "":
				currentLine = word
			case len(currentLine)+len(word)+1 <= width:
				currentLine += " " + word
			case currentLine != "":
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				wrapped = append(wrapped, word)
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of turns to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show turns since timestamp (RFC3339)")
}
