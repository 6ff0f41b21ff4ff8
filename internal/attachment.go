package internal

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AttachmentKind classifies an attachment by its file extension
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindCode  AttachmentKind = "code"
	KindText  AttachmentKind = "text"
	KindOther AttachmentKind = "other"
)

// MaxAttachmentSize caps what LoadAttachment will read into memory
const MaxAttachmentSize = 20 << 20

// previewLimit caps the raw bytes kept for an image preview
const previewLimit = 256 << 10

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".bmp":  "image/bmp",
}

var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".swift": true, ".java": true, ".kt": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".rb": true, ".rs": true, ".php": true, ".sh": true,
	".sql": true, ".html": true, ".css": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".xml": true, ".m": true, ".scala": true, ".lua": true,
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".log": true, ".rtf": true,
}

// Attachment is a file carried by a turn
type Attachment struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Kind      AttachmentKind `json:"kind" yaml:"kind"`
	Size      int64          `json:"size" yaml:"size"`
	MediaType string         `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Data      []byte         `json:"data,omitempty" yaml:"data,omitempty"`
	Preview   string         `json:"preview,omitempty" yaml:"preview,omitempty"`
}

// Clone returns a copy that does not share the payload
func (a Attachment) Clone() Attachment {
	c := a
	if a.Data != nil {
		c.Data = bytes.Clone(a.Data)
	}
	return c
}

// KindFromFilename derives the attachment kind from the extension of name
func KindFromFilename(name string) AttachmentKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case imageMediaTypes[ext] != "":
		return KindImage
	case codeExtensions[ext]:
		return KindCode
	case textExtensions[ext]:
		return KindText
	default:
		return KindOther
	}
}

// ImageMediaType returns the media type for an image filename, defaulting to PNG
func ImageMediaType(name string) string {
	if mt, ok := imageMediaTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "image/png"
}

// NewAttachment builds an attachment from an in-memory payload
func NewAttachment(name string, data []byte) Attachment {
	a := Attachment{
		ID:   uuid.NewString(),
		Name: name,
		Kind: KindFromFilename(name),
		Size: int64(len(data)),
		Data: data,
	}
	if a.Kind == KindImage {
		a.MediaType = ImageMediaType(name)
		if len(data) <= previewLimit {
			a.Preview = base64.StdEncoding.EncodeToString(data)
		}
	}
	return a
}

// LoadAttachment reads a file from disk and turns it into an attachment
func LoadAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("attachment %s is a directory", path)
	}
	if info.Size() > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("attachment %s is too large (%d bytes, limit %d)", path, info.Size(), MaxAttachmentSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}

	LogDebug("Loaded attachment %s (%d bytes)", filepath.Base(path), len(data))
	return NewAttachment(filepath.Base(path), data), nil
}
