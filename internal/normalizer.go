package internal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Normalizer repairs sessions read from disk or imported from elsewhere so
// they satisfy the invariants the engine relies on
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSession fixes up a decoded session in place and returns it.
// No turn may be streaming outside of a live engine, every turn needs an ID,
// and UpdatedAt must not precede CreatedAt.
func (n *Normalizer) NormalizeSession(session *Session) (*Session, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Title == "" {
		session.Title = DefaultTitle
	}
	if session.Turns == nil {
		session.Turns = []Turn{}
	}

	var latest time.Time
	for i := range session.Turns {
		turn := &session.Turns[i]
		if !turn.Role.Valid() {
			return nil, fmt.Errorf("turn %d has unknown role %q", i, turn.Role)
		}
		n.normalizeTurn(turn)
		if turn.CreatedAt.After(latest) {
			latest = turn.CreatedAt
		}
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = firstNonZero(earliestTurn(session.Turns), time.Now())
	}
	if session.UpdatedAt.Before(latest) {
		session.UpdatedAt = latest
	}
	if session.UpdatedAt.Before(session.CreatedAt) {
		session.UpdatedAt = session.CreatedAt
	}

	return session, nil
}

// normalizeTurn clears interrupted-stream state and fills missing IDs
func (n *Normalizer) normalizeTurn(turn *Turn) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	turn.IsStreaming = false
	for i := range turn.Attachments {
		a := &turn.Attachments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Kind == "" {
			a.Kind = KindFromFilename(a.Name)
		}
		if a.Size == 0 && len(a.Data) > 0 {
			a.Size = int64(len(a.Data))
		}
	}
	for i := range turn.Sources {
		if turn.Sources[i].ID == "" {
			turn.Sources[i].ID = uuid.NewString()
		}
	}
}

func earliestTurn(turns []Turn) time.Time {
	var earliest time.Time
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			continue
		}
		if earliest.IsZero() || t.CreatedAt.Before(earliest) {
			earliest = t.CreatedAt
		}
	}
	return earliest
}

func firstNonZero(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
