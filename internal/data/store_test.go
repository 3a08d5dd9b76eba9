package data

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, capacity int) (*messageStore, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return NewMessageStore(capacity, m, discardLogger()).(*messageStore), m
}

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func message(id, chatID, userID, username string, minute int) domain.Message {
	return domain.Message{
		ID:        id,
		ChatID:    chatID,
		UserID:    userID,
		Username:  username,
		Text:      "text " + id,
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
	}
}

func messageIDs(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMessageStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t, 3)

	for i := 1; i <= 4; i++ {
		s.Ingest(ctx, message(fmt.Sprintf("m%d", i), "C1", "u1", "Alice", i))
	}

	assert.Equal(t, []string{"m2", "m3", "m4"}, messageIDs(s.ReadChat(ctx, "C1")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MessagesIngestedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesEvictedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatsTracked))
}

func TestMessageStore_UnknownChatIsEmpty(t *testing.T) {
	s, _ := newTestStore(t, 3)

	msgs := s.ReadChat(context.Background(), "nope")
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	assert.Empty(t, s.ChatIDs(context.Background()))
}

func TestMessageStore_DefaultCapacity(t *testing.T) {
	s, _ := newTestStore(t, 0)
	assert.Equal(t, DefaultBufferCapacity, s.capacity)
}

func TestMessageStore_ReadUserAcrossChats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 10)

	s.Ingest(ctx, message("b1", "B", "u1", "Alice", 1))
	s.Ingest(ctx, message("a1", "A", "u2", "Bob", 2))
	s.Ingest(ctx, message("a2", "A", "u1", "Alice", 3))
	s.Ingest(ctx, message("b2", "B", "u2", "Bob", 4))
	s.Ingest(ctx, message("c1", "C", "u2", "Bob", 5))
	s.Ingest(ctx, message("b3", "B", "u1", "Alice", 6))
	s.Ingest(ctx, message("a3", "A", "u1", "Alice", 7))

	result := s.ReadUserAcrossChats(ctx, "u1")
	require.Len(t, result, 2)

	// First-seen order: B before A; C has no messages from u1
	assert.Equal(t, "B", result[0].ChatID)
	assert.Equal(t, []string{"b1", "b3"}, messageIDs(result[0].Messages))
	assert.Equal(t, "A", result[1].ChatID)
	assert.Equal(t, []string{"a2", "a3"}, messageIDs(result[1].Messages))

	// Buffers are untouched by the query
	assert.Equal(t, []string{"b1", "b2", "b3"}, messageIDs(s.ReadChat(ctx, "B")))
	assert.Empty(t, s.ReadUserAcrossChats(ctx, "nobody"))
}

func TestMessageStore_FindUsersByName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 10)

	s.Ingest(ctx, message("1", "A", "u1", "Alice", 1))
	s.Ingest(ctx, message("2", "B", "u1", "Alice", 2))
	s.Ingest(ctx, message("3", "B", "u3", "alice", 3))
	s.Ingest(ctx, message("4", "A", "u2", "Bob", 4))

	assert.Equal(t, []string{"u2"}, s.FindUsersByName(ctx, "@bob"))
	assert.Equal(t, []string{"u1", "u3"}, s.FindUsersByName(ctx, "Alice"))
	assert.Empty(t, s.FindUsersByName(ctx, "Carol"))
	assert.Empty(t, s.FindUsersByName(ctx, "  "))

	assert.Equal(t, []string{"u1"}, s.FindUsersByNameInChat(ctx, "A", "alice"))
	assert.Equal(t, []string{"u1", "u3"}, s.FindUsersByNameInChat(ctx, "B", "Alice"))
	assert.Empty(t, s.FindUsersByNameInChat(ctx, "A", "nobody"))
	assert.Empty(t, s.FindUsersByNameInChat(ctx, "unknown", "Alice"))
}

func TestMessageStore_Stats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 10)

	s.Ingest(ctx, message("1", "A", "u1", "Alice", 1))
	s.Ingest(ctx, message("2", "A", "u2", "Bob", 2))
	s.Ingest(ctx, message("3", "B", "u1", "Alice", 30))

	chat := s.ChatStats(ctx, "A")
	assert.Equal(t, 2, chat.TotalMessages)
	assert.Equal(t, 2, chat.UniqueUsers)

	user := s.UserStats(ctx, "u1")
	assert.Equal(t, 2, user.TotalMessages)
	assert.Equal(t, []string{"A", "B"}, user.ChatIDs)
	assert.Equal(t, base.Add(time.Minute), user.OldestMessage)
	assert.Equal(t, base.Add(30*time.Minute), user.NewestMessage)

	none := s.UserStats(ctx, "ghost")
	assert.Equal(t, 0, none.TotalMessages)
	assert.Empty(t, none.ChatIDs)
}

func TestMessageStore_ClearChat(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 10)

	s.Ingest(ctx, message("1", "A", "u1", "Alice", 1))
	s.Ingest(ctx, message("2", "A", "u2", "Bob", 2))

	assert.Equal(t, 2, s.ClearChat(ctx, "A"))
	assert.Empty(t, s.ReadChat(ctx, "A"))
	assert.Equal(t, []string{"A"}, s.ChatIDs(ctx))
	assert.Equal(t, 0, s.ClearChat(ctx, "unknown"))
}

func TestMessageStore_ConcurrentChats(t *testing.T) {
	ctx := context.Background()
	s, m := newTestStore(t, 100)

	const (
		chats   = 10
		perChat = 150
	)

	var wg sync.WaitGroup
	for c := 0; c < chats; c++ {
		wg.Add(2)
		chatID := fmt.Sprintf("chat-%d", c)
		go func() {
			defer wg.Done()
			for i := 0; i < perChat; i++ {
				s.Ingest(ctx, message(fmt.Sprintf("%s-%d", chatID, i), chatID, "u1", "Alice", i))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < perChat; i++ {
				msgs := s.ReadChat(ctx, chatID)
				assert.LessOrEqual(t, len(msgs), 100)
				_ = s.ReadUserAcrossChats(ctx, "u1")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.ChatIDs(ctx), chats)
	for c := 0; c < chats; c++ {
		msgs := s.ReadChat(ctx, fmt.Sprintf("chat-%d", c))
		require.Len(t, msgs, 100)
		// Newest 100 messages of the chat, in order
		assert.Equal(t, fmt.Sprintf("chat-%d-%d", c, perChat-100), msgs[0].ID)
		assert.Equal(t, fmt.Sprintf("chat-%d-%d", c, perChat-1), msgs[99].ID)
	}
	assert.Equal(t, float64(chats*perChat), testutil.ToFloat64(m.MessagesIngestedTotal))
}
