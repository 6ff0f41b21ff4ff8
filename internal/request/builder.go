package request

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/iksnae/chat-session/internal"
)

// WebSearchPlugin is the plugin ID that turns on provider web search
const WebSearchPlugin = "web"

// Builder converts turn history into a ChatRequest
type Builder struct{}

// NewBuilder creates a new Builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build produces the request for history. history must not contain the
// assistant placeholder that is about to be filled.
func (b *Builder) Build(history []internal.Turn, settings internal.ProviderSettings) (*ChatRequest, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, &internal.ConfigurationError{Field: "api key", Reason: "is not set"}
	}
	if strings.TrimSpace(settings.Model) == "" {
		return nil, &internal.ConfigurationError{Field: "model", Reason: "is not set"}
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	if prompt := strings.TrimSpace(settings.SystemPrompt); prompt != "" {
		messages = append(messages, ChatMessage{
			Role:    string(internal.RoleSystem),
			Content: TextContent(prompt),
		})
	}
	for _, turn := range history {
		messages = append(messages, ChatMessage{
			Role:    string(turn.Role),
			Content: buildContent(turn),
		})
	}

	req := &ChatRequest{
		Model:       settings.Model,
		Messages:    messages,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		Stream:      true,
	}
	if settings.WebSearch {
		req.Plugins = []Plugin{{ID: WebSearchPlugin}}
	}
	return req, nil
}

// buildContent picks the content variant once, based on whether the turn
// carries attachments
func buildContent(turn internal.Turn) Content {
	if len(turn.Attachments) == 0 {
		return TextContent(turn.Content)
	}

	parts := make([]ContentPart, 0, len(turn.Attachments)+1)
	if turn.Content != "" {
		parts = append(parts, ContentPart{Type: PartText, Text: turn.Content})
	}
	for _, a := range turn.Attachments {
		part, err := attachmentPart(a)
		if err != nil {
			internal.LogDebug("Skipping attachment %s: %v", a.Name, err)
			continue
		}
		parts = append(parts, part)
	}
	return PartsContent(parts...)
}

var (
	errNoImagePayload = errors.New("image has no payload or preview")
	errNotText        = errors.New("payload is not text")
)

// attachmentPart renders one attachment. An image without raw data falls
// back to its stored base64 preview.
func attachmentPart(a internal.Attachment) (ContentPart, error) {
	if a.Kind == internal.KindImage {
		var encoded string
		switch {
		case len(a.Data) > 0:
			encoded = base64.StdEncoding.EncodeToString(a.Data)
		case a.Preview != "":
			encoded = a.Preview
		default:
			return ContentPart{}, errNoImagePayload
		}
		mediaType := a.MediaType
		if mediaType == "" {
			mediaType = internal.ImageMediaType(a.Name)
		}
		return ContentPart{
			Type: PartImageURL,
			ImageURL: &ImageURL{
				URL: "data:" + mediaType + ";base64," + encoded,
			},
		}, nil
	}

	text, ok := decodeText(a.Data)
	if !ok {
		return ContentPart{}, errNotText
	}
	return ContentPart{
		Type: PartText,
		Text: "```" + a.Name + "\n" + text + "\n```",
	}, nil
}

// decodeText accepts valid UTF-8 without NUL bytes; a leading BOM is dropped
func decodeText(data []byte) (string, bool) {
	if data == nil {
		return "", false
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", false
	}
	return string(data), true
}
