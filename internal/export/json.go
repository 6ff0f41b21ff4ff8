package export

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/iksnae/chat-session/internal"
)

var errNilSession = errors.New("no session to export")

// JSONExporter writes a session as one indented object with the schema the
// session file uses: snake_case keys, RFC 3339 timestamps, attachment
// payloads base64 encoded, and is_streaming never set. Import accepts its
// output unchanged.
type JSONExporter struct{}

// Export writes session to w
func (e *JSONExporter) Export(session *internal.Session, w io.Writer) error {
	if session == nil {
		return errNilSession
	}
	snapshot := session.Clone()
	for i := range snapshot.Turns {
		snapshot.Turns[i].IsStreaming = false
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

// Extension returns "json"
func (e *JSONExporter) Extension() string {
	return "json"
}
