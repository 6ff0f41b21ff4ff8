package internal

import (
	"time"
)

// CreateTestSession creates a test session with one user/assistant exchange
func CreateTestSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:    id,
		Title: "Test Conversation",
		Turns: []Turn{
			{
				ID:        id + "-turn-1",
				Role:      RoleUser,
				Content:   "Hello, how are you?",
				CreatedAt: now.Add(-time.Minute),
			},
			{
				ID:        id + "-turn-2",
				Role:      RoleAssistant,
				Content:   "I'm doing well, thank you!",
				CreatedAt: now,
				Sources: []Source{
					{ID: id + "-source-1", Title: "Example", URL: "https://example.com", Snippet: "An example page"},
				},
			},
		},
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now,
	}
}

// CreateTestSessionWithTurns creates a test session with custom turns
func CreateTestSessionWithTurns(id string, turns []Turn) *Session {
	created := time.Now().UTC()
	if len(turns) > 0 && !turns[0].CreatedAt.IsZero() {
		created = turns[0].CreatedAt
	}
	return &Session{
		ID:        id,
		Title:     DefaultTitle,
		Turns:     turns,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// CreateTestSessionAt creates a test session last updated at updated
func CreateTestSessionAt(id string, updated time.Time) *Session {
	s := CreateTestSession(id)
	s.CreatedAt = updated.Add(-time.Hour)
	s.UpdatedAt = updated
	for i := range s.Turns {
		s.Turns[i].CreatedAt = updated.Add(-time.Duration(len(s.Turns)-i) * time.Minute)
	}
	return s
}
