package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
)

func TestChatUsecase(t *testing.T) {
	f := newFixture(t)
	uc := NewChatUsecase(f.store, f.access, discardLogger())
	ctx := context.Background()

	uc.Ingest(ctx, domain.Message{ID: "1", ChatID: "A", UserID: "ou_1", Username: "Alice", Text: "hi", Timestamp: t0})
	uc.Ingest(ctx, domain.Message{ID: "2", ChatID: "B", UserID: "ou_1", Username: "Alice", Text: "yo", Timestamp: t0})
	uc.Ingest(ctx, domain.Message{ID: "3", ChatID: "A", UserID: "ou_2", Username: "Bob", Text: "hey", Timestamp: t0})

	stats, err := uc.ChatStats(ctx, helper, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 2, stats.UniqueUsers)

	_, err = uc.ChatStats(ctx, outsider, "A")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	user, err := uc.UserStats(ctx, helper, "ou_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, user.ChatIDs)

	overview := uc.Overview(ctx)
	require.Len(t, overview, 2)
	assert.Equal(t, "A", overview[0].ChatID)

	_, err = uc.ClearChat(ctx, helper, "A")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	n, err := uc.ClearChat(ctx, mainAdmin, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.store.ReadChat(ctx, "A"))
}
