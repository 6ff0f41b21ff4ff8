package internal

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one message in a conversation
type Turn struct {
	ID          string       `json:"id" yaml:"id"`
	Role        Role         `json:"role" yaml:"role"`
	Content     string       `json:"content" yaml:"content"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Sources     []Source     `json:"sources,omitempty" yaml:"sources,omitempty"`
	IsStreaming bool         `json:"is_streaming,omitempty" yaml:"is_streaming,omitempty"`
	Status      string       `json:"status,omitempty" yaml:"status,omitempty"`
	CreatedAt   time.Time    `json:"created_at" yaml:"created_at"`
}

// NewTurn creates a turn stamped with a fresh ID and the current time
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the turn
func (t Turn) Clone() Turn {
	c := t
	if t.Attachments != nil {
		c.Attachments = make([]Attachment, len(t.Attachments))
		for i, a := range t.Attachments {
			c.Attachments[i] = a.Clone()
		}
	}
	if t.Sources != nil {
		c.Sources = append([]Source(nil), t.Sources...)
	}
	return c
}

// Source is a citation produced by the provider
type Source struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	URL     string `json:"url" yaml:"url"`
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`
}

// NewSource creates a source with a fresh ID
func NewSource(title, url, snippet string) Source {
	return Source{
		ID:      uuid.NewString(),
		Title:   title,
		URL:     url,
		Snippet: snippet,
	}
}

const (
	MinTemperature   = 0.0
	MaxTemperature   = 2.0
	MinMaxTokens     = 1
	MaxMaxTokens     = 128000
	DefaultMaxTokens = 4096
)

// ProviderSettings holds what the request builder and transport need to talk
// to the completion endpoint. APIKey must never be logged.
type ProviderSettings struct {
	APIKey       string
	Endpoint     string
	Model        string
	Temperature  float64
	MaxTokens    int
	WebSearch    bool
	SystemPrompt string
}

// Clamped returns a copy with temperature and max tokens forced into the
// ranges the provider accepts
func (p ProviderSettings) Clamped() ProviderSettings {
	c := p
	switch {
	case math.IsNaN(c.Temperature), c.Temperature < MinTemperature:
		c.Temperature = MinTemperature
	case c.Temperature > MaxTemperature:
		c.Temperature = MaxTemperature
	}
	switch {
	case c.MaxTokens <= 0:
		c.MaxTokens = DefaultMaxTokens
	case c.MaxTokens > MaxMaxTokens:
		c.MaxTokens = MaxMaxTokens
	}
	return c
}

// String implements fmt.Stringer without exposing the key
func (p ProviderSettings) String() string {
	return "ProviderSettings{model=" + p.Model + ", endpoint=" + p.Endpoint + ", key=" + RedactSecret(p.APIKey) + "}"
}
