package repo

import "context"

// Notifier delivers text to a user's private chat.
// It never addresses a group chat.
type Notifier interface {
	SendPrivate(ctx context.Context, userID, text string) error
}

// MemberDirectory resolves display names of chat members
type MemberDirectory interface {
	GetMemberName(ctx context.Context, chatID, userID string) (string, error)
}
