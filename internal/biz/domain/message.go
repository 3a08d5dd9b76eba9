package domain

import "time"

// Message represents a buffered chat message.
// It is a value type: once ingested it is never mutated.
type Message struct {
	ID        string
	ChatID    string
	UserID    string
	Username  string // Display name, may be empty
	Text      string
	Timestamp time.Time
}

// Speaker returns the display label used for attribution in prompts
func (m *Message) Speaker() string {
	if m.Username != "" {
		return m.Username
	}
	return m.UserID
}

// IsBefore checks if the message is before the specified time
func (m *Message) IsBefore(t time.Time) bool {
	return m.Timestamp.Before(t)
}
