package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// SSEDelta renders one completion chunk carrying a content delta
func SSEDelta(content string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"delta": map[string]interface{}{"content": content}},
		},
	})
	return "data: " + string(payload) + "\n\n"
}

// SSEDone renders the terminal frame
func SSEDone() string {
	return "data: [DONE]\n\n"
}

// SSEBody renders a complete stream of deltas followed by the terminal frame
func SSEBody(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(SSEDelta(d))
	}
	b.WriteString(SSEDone())
	return b.String()
}

// RecordedRequest is what a provider fixture saw
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	Accept        string
	Body          []byte
}

// Provider is an http.Handler standing in for a streaming completion endpoint
type Provider struct {
	Status int
	Body   string

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewProvider creates a provider that answers every request with status and body
func NewProvider(status int, body string) *Provider {
	return &Provider{Status: status, Body: body}
}

func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.requests = append(p.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Accept:        r.Header.Get("Accept"),
		Body:          body,
	})
	p.mu.Unlock()

	if p.Status >= 200 && p.Status < 300 {
		w.Header().Set("Content-Type", "text/event-stream")
	}
	w.WriteHeader(p.Status)
	_, _ = io.WriteString(w, p.Body)
}

// Requests returns the requests seen so far
func (p *Provider) Requests() []RecordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RecordedRequest(nil), p.requests...)
}

// Hang returns a handler that writes frames, flushes, and then blocks until
// the client goes away or release is closed
func Hang(t *testing.T, frames string, release <-chan struct{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, frames)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}
}

// SessionsJSON renders a minimal session file holding sessions with the given IDs
func SessionsJSON(ids ...string) []byte {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"id":%q,"title":"Session %d","turns":[{"id":"%s-t1","role":"user","content":"hi","created_at":"2024-01-0%dT10:00:00Z"}],"created_at":"2024-01-0%dT10:00:00Z","updated_at":"2024-01-0%dT10:00:00Z"}`, id, i+1, id, i+1, i+1, i+1)
	}
	return []byte("[" + strings.Join(parts, ",") + "]")
}
