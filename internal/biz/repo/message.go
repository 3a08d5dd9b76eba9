package repo

import (
	"context"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
)

// ChatMessages is one chat's slice of a cross-chat query
type ChatMessages struct {
	ChatID   string
	Messages []domain.Message // oldest first
}

// MessageStore is the in-memory multi-chat message window.
// Reads return copies and never fail; an unknown chat is an empty result.
type MessageStore interface {
	// Ingest appends msg to the buffer of msg.ChatID, creating the buffer on first use
	Ingest(ctx context.Context, msg domain.Message)

	// ReadChat returns the buffered messages of one chat, oldest first
	ReadChat(ctx context.Context, chatID string) []domain.Message

	// ReadUserAcrossChats returns userID's messages grouped by chat.
	// Chats come in first-seen order; chats without matches are omitted.
	ReadUserAcrossChats(ctx context.Context, userID string) []ChatMessages

	// FindUsersByName returns the distinct user ids whose display name matches name
	FindUsersByName(ctx context.Context, name string) []string

	// FindUsersByNameInChat is FindUsersByName limited to one chat
	FindUsersByNameInChat(ctx context.Context, chatID, name string) []string

	// ChatIDs returns all known chats in first-seen order
	ChatIDs(ctx context.Context) []string

	// ChatStats summarizes one chat
	ChatStats(ctx context.Context, chatID string) domain.ChatStats

	// UserStats summarizes one user across all chats
	UserStats(ctx context.Context, userID string) domain.UserStats

	// ClearChat drops a chat's buffered messages and returns how many were removed
	ClearChat(ctx context.Context, chatID string) int
}
