package data

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/feishu"
)

// FeishuAPI is the slice of the Feishu client used by the repositories
type FeishuAPI interface {
	SendPrivate(ctx context.Context, openID, text string) error
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
}

// FeishuRepo implements repo.Notifier and repo.MemberDirectory on the Feishu API
type FeishuRepo struct {
	client FeishuAPI
	logger *slog.Logger

	// chatID -> open_id -> name, refreshed on a miss
	namesMu sync.RWMutex
	names   map[string]map[string]string
}

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client FeishuAPI, logger *slog.Logger) *FeishuRepo {
	return &FeishuRepo{
		client: client,
		logger: logger.With("component", "feishu_repo"),
		names:  make(map[string]map[string]string),
	}
}

var (
	_ repo.Notifier        = (*FeishuRepo)(nil)
	_ repo.MemberDirectory = (*FeishuRepo)(nil)
)

// SendPrivate delivers text to the user's private chat
func (r *FeishuRepo) SendPrivate(ctx context.Context, userID, text string) error {
	return r.client.SendPrivate(ctx, userID, text)
}

// GetMemberName resolves a member's display name, refreshing the chat's member list on a miss.
// An unknown member yields an empty name.
func (r *FeishuRepo) GetMemberName(ctx context.Context, chatID, userID string) (string, error) {
	r.namesMu.RLock()
	name, ok := r.names[chatID][userID]
	r.namesMu.RUnlock()
	if ok {
		return name, nil
	}

	members, err := r.client.GetChatMembers(ctx, chatID)
	if err != nil {
		return "", err
	}

	byID := make(map[string]string, len(members))
	for _, m := range members {
		byID[m.MemberID] = m.Name
	}
	if _, found := byID[userID]; !found {
		// Remember unknown senders so every message does not trigger a refresh
		byID[userID] = ""
	}

	r.namesMu.Lock()
	r.names[chatID] = byID
	r.namesMu.Unlock()

	r.logger.Debug("member names refreshed", "chat_id", chatID, "count", len(members))
	return byID[userID], nil
}
