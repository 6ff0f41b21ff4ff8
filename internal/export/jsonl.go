package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/chat-session/internal"
)

// JSONLExporter exports sessions in JSONL format (one turn per line)
type JSONLExporter struct{}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, turn := range session.Turns {
		obj := map[string]interface{}{
			"role":    turn.Role,
			"content": turn.Content,
		}

		if !turn.CreatedAt.IsZero() {
			obj["timestamp"] = turn.CreatedAt.Format(time.RFC3339)
		}

		if len(turn.Attachments) > 0 {
			names := make([]string, 0, len(turn.Attachments))
			for _, a := range turn.Attachments {
				names = append(names, a.Name)
			}
			obj["attachments"] = names
		}

		if len(turn.Sources) > 0 {
			urls := make([]string, 0, len(turn.Sources))
			for _, s := range turn.Sources {
				urls = append(urls, s.URL)
			}
			obj["sources"] = urls
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode turn: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
