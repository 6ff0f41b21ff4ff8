// Package request turns session history into a chat-completion request body.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChatRequest is the body POSTed to the completion endpoint
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Plugins     []Plugin      `json:"plugins,omitempty"`
}

// Plugin enables a provider-side extension such as web search
type Plugin struct {
	ID string `json:"id"`
}

// ChatMessage is one message of the request
type ChatMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// PartType names the kind of a multimodal content part
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ContentPart is one element of a multimodal message
type ContentPart struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image, inline as a data URL
type ImageURL struct {
	URL string `json:"url"`
}

// Content is either plain text or an ordered list of parts. Each variant has
// its own wire shape: a JSON string or a JSON array.
type Content struct {
	text  string
	parts []ContentPart
	multi bool
}

// TextContent builds the plain-text variant
func TextContent(text string) Content {
	return Content{text: text}
}

// PartsContent builds the multimodal variant
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{parts: parts, multi: true}
}

// IsMultimodal reports which variant c holds
func (c Content) IsMultimodal() bool {
	return c.multi
}

// Text returns the text of the plain variant
func (c Content) Text() string {
	return c.text
}

// Parts returns the parts of the multimodal variant
func (c Content) Parts() []ContentPart {
	return c.parts
}

// MarshalJSON encodes the text variant as a string and the parts variant as an array
func (c Content) MarshalJSON() ([]byte, error) {
	if c.multi {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts either wire shape
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty content")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = TextContent(s)
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
	case 'n':
		*c = TextContent("")
	default:
		return fmt.Errorf("content must be a string or an array, got %q", trimmed[:1])
	}
	return nil
}
