package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/chat-session/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# %s\n\n", escapeMarkdown(session.Title))

	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", session.ID)
	if !session.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", session.CreatedAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Turns:** %d\n\n", len(session.Turns))

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, turn := range session.Turns {
		timestamp := ""
		if !turn.CreatedAt.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", turn.CreatedAt.Format(time.RFC3339))
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", turn.Role, timestamp, escapeMarkdown(turn.Content))

		if len(turn.Attachments) > 0 {
			_, _ = fmt.Fprintf(w, "_Attachments:_\n\n")
			for _, a := range turn.Attachments {
				_, _ = fmt.Fprintf(w, "- `%s` (%s, %d bytes)\n", a.Name, a.Kind, a.Size)
			}
			_, _ = fmt.Fprintln(w)
		}

		if len(turn.Sources) > 0 {
			_, _ = fmt.Fprintf(w, "_Sources:_\n\n")
			for j, s := range turn.Sources {
				title := s.Title
				if title == "" {
					title = s.URL
				}
				_, _ = fmt.Fprintf(w, "%d. [%s](%s)\n", j+1, title, s.URL)
			}
			_, _ = fmt.Fprintln(w)
		}

		if i < len(session.Turns)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes markdown emphasis outside code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
