package internal

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DefaultTitle is the placeholder title of a session nobody has named yet
const DefaultTitle = "New Chat"

// titleLimit is the number of characters kept when deriving a title
const titleLimit = 50

// Session represents one conversation: ordered turns plus metadata
type Session struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Turns     []Turn    `json:"turns" yaml:"turns"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewSession creates an empty session with the default title
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTurn appends a turn, bumps UpdatedAt and derives the title from the
// first non-empty user turn while the title is still the default.
func AddTurn(session *Session, turn Turn) {
	session.Turns = append(session.Turns, turn)
	session.Touch()

	if session.Title == DefaultTitle && turn.Role == RoleUser {
		if title := DeriveTitle(turn.Content); title != "" {
			session.Title = title
		}
	}
}

// LastTurn returns a pointer to the last turn, or nil for an empty session
func LastTurn(session *Session) *Turn {
	if len(session.Turns) == 0 {
		return nil
	}
	return &session.Turns[len(session.Turns)-1]
}

// TurnCount returns the number of turns in the session
func TurnCount(session *Session) int {
	return len(session.Turns)
}

// Touch bumps UpdatedAt, never letting it fall behind CreatedAt
func (s *Session) Touch() {
	now := time.Now()
	if now.Before(s.CreatedAt) {
		now = s.CreatedAt
	}
	s.UpdatedAt = now
}

// FindTurn returns the turn with the given ID, or nil
func (s *Session) FindTurn(id string) *Turn {
	for i := range s.Turns {
		if s.Turns[i].ID == id {
			return &s.Turns[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the session. Attachment payloads are copied too
// so a snapshot never aliases engine-owned memory.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		c.Turns[i] = t.Clone()
	}
	return &c
}

// DeriveTitle collapses whitespace and keeps the leading characters of text
func DeriveTitle(text string) string {
	collapsed := strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
	if collapsed == "" {
		return ""
	}
	runes := []rune(collapsed)
	if len(runes) <= titleLimit {
		return collapsed
	}
	return strings.TrimSpace(string(runes[:titleLimit])) + "…"
}
