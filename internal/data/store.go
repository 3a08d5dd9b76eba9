package data

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

// DefaultBufferCapacity is the per-chat buffer size used when none is configured
const DefaultBufferCapacity = 1000

// messageStore implements repo.MessageStore in process memory.
//
// The chat index is guarded by mu; each buffer carries its own lock, so
// ingestion into different chats only shares the read side of mu.
type messageStore struct {
	capacity int
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu    sync.RWMutex
	chats map[string]*domain.ChatBuffer
	order []string // chat ids in first-seen order
}

// NewMessageStore creates an empty store whose buffers hold capacity messages each
func NewMessageStore(capacity int, m *metrics.Metrics, logger *slog.Logger) repo.MessageStore {
	if capacity < 1 {
		capacity = DefaultBufferCapacity
	}
	logger.Info("message store initialized", "capacity", capacity)
	return &messageStore{
		capacity: capacity,
		metrics:  m,
		logger:   logger,
		chats:    make(map[string]*domain.ChatBuffer),
	}
}

// Ingest adds a message to its chat buffer
func (s *messageStore) Ingest(ctx context.Context, msg domain.Message) {
	buf := s.bufferFor(msg.ChatID)
	evicted := buf.Append(msg)

	s.metrics.MessagesIngestedTotal.Inc()
	if evicted {
		s.metrics.MessagesEvictedTotal.Inc()
	}
	s.logger.Debug("message buffered", "chat_id", msg.ChatID, "user_id", msg.UserID, "evicted", evicted)
}

// bufferFor returns the chat's buffer, creating it on first use
func (s *messageStore) bufferFor(chatID string) *domain.ChatBuffer {
	s.mu.RLock()
	buf, ok := s.chats[chatID]
	s.mu.RUnlock()
	if ok {
		return buf
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok = s.chats[chatID]; ok {
		return buf
	}
	buf = domain.NewChatBuffer(s.capacity)
	s.chats[chatID] = buf
	s.order = append(s.order, chatID)
	s.metrics.ChatsTracked.Set(float64(len(s.chats)))
	s.logger.Info("chat buffer created", "chat_id", chatID)
	return buf
}

// lookup returns an existing buffer without creating one
func (s *messageStore) lookup(chatID string) (*domain.ChatBuffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.chats[chatID]
	return buf, ok
}

// buffers returns every buffer in first-seen order.
// The index lock is released before any buffer is read.
func (s *messageStore) buffers() ([]string, []*domain.ChatBuffer) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chatIDs := make([]string, len(s.order))
	copy(chatIDs, s.order)
	bufs := make([]*domain.ChatBuffer, len(chatIDs))
	for i, id := range chatIDs {
		bufs[i] = s.chats[id]
	}
	return chatIDs, bufs
}

// ReadChat returns a snapshot of one chat
func (s *messageStore) ReadChat(ctx context.Context, chatID string) []domain.Message {
	buf, ok := s.lookup(chatID)
	if !ok {
		return []domain.Message{}
	}
	return buf.Snapshot()
}

// ReadUserAcrossChats returns a user's messages grouped by chat
func (s *messageStore) ReadUserAcrossChats(ctx context.Context, userID string) []repo.ChatMessages {
	chatIDs, bufs := s.buffers()

	var result []repo.ChatMessages
	for i, buf := range bufs {
		var matched []domain.Message
		for _, m := range buf.Snapshot() {
			if m.UserID == userID {
				matched = append(matched, m)
			}
		}
		if len(matched) > 0 {
			result = append(result, repo.ChatMessages{ChatID: chatIDs[i], Messages: matched})
		}
	}
	return result
}

// FindUsersByName matches display names case-insensitively, ignoring a leading "@"
func (s *messageStore) FindUsersByName(ctx context.Context, name string) []string {
	_, bufs := s.buffers()
	return matchNames(bufs, name)
}

// FindUsersByNameInChat is FindUsersByName restricted to one chat
func (s *messageStore) FindUsersByNameInChat(ctx context.Context, chatID, name string) []string {
	buf, ok := s.lookup(chatID)
	if !ok {
		return nil
	}
	return matchNames([]*domain.ChatBuffer{buf}, name)
}

// matchNames returns the sorted distinct user ids posting under name in bufs
func matchNames(bufs []*domain.ChatBuffer, name string) []string {
	want := normalizeName(name)
	if want == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var userIDs []string
	for _, buf := range bufs {
		for _, m := range buf.Snapshot() {
			if normalizeName(m.Username) != want {
				continue
			}
			if _, ok := seen[m.UserID]; ok {
				continue
			}
			seen[m.UserID] = struct{}{}
			userIDs = append(userIDs, m.UserID)
		}
	}
	sort.Strings(userIDs)
	return userIDs
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@")))
}

// ChatIDs returns known chats in first-seen order
func (s *messageStore) ChatIDs(ctx context.Context) []string {
	chatIDs, _ := s.buffers()
	return chatIDs
}

// ChatStats summarizes one chat
func (s *messageStore) ChatStats(ctx context.Context, chatID string) domain.ChatStats {
	return domain.StatsOf(chatID, s.ReadChat(ctx, chatID))
}

// UserStats summarizes a user's presence across chats
func (s *messageStore) UserStats(ctx context.Context, userID string) domain.UserStats {
	stats := domain.UserStats{UserID: userID, ChatIDs: []string{}}
	for _, cm := range s.ReadUserAcrossChats(ctx, userID) {
		stats.ChatIDs = append(stats.ChatIDs, cm.ChatID)
		stats.TotalMessages += len(cm.Messages)
		for _, m := range cm.Messages {
			if stats.OldestMessage.IsZero() || m.Timestamp.Before(stats.OldestMessage) {
				stats.OldestMessage = m.Timestamp
			}
			if m.Timestamp.After(stats.NewestMessage) {
				stats.NewestMessage = m.Timestamp
			}
		}
	}
	return stats
}

// ClearChat empties one chat's buffer; the chat stays known
func (s *messageStore) ClearChat(ctx context.Context, chatID string) int {
	buf, ok := s.lookup(chatID)
	if !ok {
		return 0
	}
	n := buf.Clear()
	s.logger.Info("chat buffer cleared", "chat_id", chatID, "removed", n)
	return n
}
