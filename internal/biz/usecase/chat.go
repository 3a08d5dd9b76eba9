package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
)

// ChatUsecase handles ingestion and buffer housekeeping
type ChatUsecase struct {
	store  repo.MessageStore
	access *AccessController
	logger *slog.Logger
}

// NewChatUsecase creates a new chat usecase
func NewChatUsecase(store repo.MessageStore, access *AccessController, logger *slog.Logger) *ChatUsecase {
	return &ChatUsecase{store: store, access: access, logger: logger}
}

// Ingest buffers a group message. It is not gated and never fails.
func (uc *ChatUsecase) Ingest(ctx context.Context, msg domain.Message) {
	uc.store.Ingest(ctx, msg)
}

// ChatStats returns statistics for one chat to an authorized caller
func (uc *ChatUsecase) ChatStats(ctx context.Context, caller, chatID string) (domain.ChatStats, error) {
	if !uc.access.IsAuthorized(caller) {
		return domain.ChatStats{}, fmt.Errorf("chat stats: %w", domain.ErrPermissionDenied)
	}
	return uc.store.ChatStats(ctx, chatID), nil
}

// UserStats returns a user's cross-chat statistics to an authorized caller
func (uc *ChatUsecase) UserStats(ctx context.Context, caller, userID string) (domain.UserStats, error) {
	if !uc.access.IsAuthorized(caller) {
		return domain.UserStats{}, fmt.Errorf("user stats: %w", domain.ErrPermissionDenied)
	}
	return uc.store.UserStats(ctx, userID), nil
}

// ClearChat empties a chat buffer. Only the main admin may call it.
func (uc *ChatUsecase) ClearChat(ctx context.Context, caller, chatID string) (int, error) {
	if !uc.access.IsMainAdmin(caller) {
		return 0, fmt.Errorf("clear chat: %w", domain.ErrPermissionDenied)
	}
	n := uc.store.ClearChat(ctx, chatID)
	uc.logger.Info("chat cleared", "chat_id", chatID, "by", caller, "removed", n)
	return n, nil
}

// Overview returns statistics for every known chat, first-seen order
func (uc *ChatUsecase) Overview(ctx context.Context) []domain.ChatStats {
	ids := uc.store.ChatIDs(ctx)
	out := make([]domain.ChatStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, uc.store.ChatStats(ctx, id))
	}
	return out
}
