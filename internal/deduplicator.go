package internal

// Deduplicator collapses sessions that share an ID
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps one session per ID: the most recently updated one, at the
// position where that ID first appeared
func (d *Deduplicator) Deduplicate(sessions []*Session) []*Session {
	index := make(map[string]int)
	var unique []*Session

	for _, session := range sessions {
		if session == nil {
			continue
		}
		if i, ok := index[session.ID]; ok {
			if session.UpdatedAt.After(unique[i].UpdatedAt) {
				unique[i] = session
			}
			continue
		}
		index[session.ID] = len(unique)
		unique = append(unique, session)
	}

	return unique
}

// Upsert replaces the session with the same ID or prepends it
func (d *Deduplicator) Upsert(sessions []*Session, session *Session) []*Session {
	for i, s := range sessions {
		if s.ID == session.ID {
			sessions[i] = session
			return sessions
		}
	}
	return append([]*Session{session}, sessions...)
}

// Remove drops the session with the given ID, reporting whether it was present
func (d *Deduplicator) Remove(sessions []*Session, id string) ([]*Session, bool) {
	for i, s := range sessions {
		if s.ID == id {
			return append(sessions[:i:i], sessions[i+1:]...), true
		}
	}
	return sessions, false
}
