// Package export renders a session for use outside the app. Every format
// carries the session title, its turns in order, and the attachments and
// sources each turn holds; only json can be read back by import.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/chat-session/internal"
)

// Exporter writes one session in a single format
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// Formats lists the canonical format names accepted by NewExporter
var Formats = []string{"json", "jsonl", "md", "yaml"}

// NewExporter returns the exporter for format. Names are matched without
// regard to case; "markdown" and "yml" are accepted as aliases.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, &internal.ConfigurationError{
			Field:  "format",
			Reason: fmt.Sprintf("%q is not supported (supported: %s)", format, strings.Join(Formats, ", ")),
		}
	}
}
