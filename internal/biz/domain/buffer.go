package domain

import (
	"sync"
	"time"
)

// ChatBuffer is a fixed-capacity window of messages for one chat, ordered by timestamp.
// Appending to a full buffer evicts exactly the oldest message.
// All methods are safe for concurrent use; operations on one buffer are serialized.
type ChatBuffer struct {
	mu    sync.Mutex
	items []Message // ring storage, len == capacity
	head  int       // index of the oldest message
	count int
}

// NewChatBuffer creates a buffer holding at most capacity messages.
// A capacity below 1 is raised to 1.
func NewChatBuffer(capacity int) *ChatBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ChatBuffer{items: make([]Message, capacity)}
}

// Capacity returns the fixed capacity
func (b *ChatBuffer) Capacity() int {
	return len(b.items)
}

// Len returns the number of buffered messages
func (b *ChatBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Append inserts msg in timestamp order and reports whether a message was evicted.
// Messages with equal timestamps keep arrival order. A late message older than
// everything in a full buffer is itself the oldest and is dropped.
func (b *ChatBuffer) Append(msg Message) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	if b.count == capacity {
		if msg.Timestamp.Before(b.items[b.head].Timestamp) {
			return true
		}
		// Full: drop the oldest slot and advance head
		b.items[b.head] = Message{}
		b.head = (b.head + 1) % capacity
		b.count--
		evicted = true
	}

	// Shift newer messages up one slot until msg's position is free
	pos := b.count
	for pos > 0 {
		prev := b.items[(b.head+pos-1)%capacity]
		if !msg.Timestamp.Before(prev.Timestamp) {
			break
		}
		b.items[(b.head+pos)%capacity] = prev
		pos--
	}
	b.items[(b.head+pos)%capacity] = msg
	b.count++
	return evicted
}

// Snapshot returns a copy of the buffered messages, oldest first
func (b *ChatBuffer) Snapshot() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Clear drops every buffered message, keeping the capacity
func (b *ChatBuffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	for i := range b.items {
		b.items[i] = Message{}
	}
	b.head, b.count = 0, 0
	return n
}

// ChatStats summarizes a chat buffer
type ChatStats struct {
	ChatID        string    `json:"chat_id"`
	TotalMessages int       `json:"total_messages"`
	UniqueUsers   int       `json:"unique_users"`
	OldestMessage time.Time `json:"oldest_message"`
	NewestMessage time.Time `json:"newest_message"`
}

// StatsOf computes chat statistics from an oldest-first snapshot
func StatsOf(chatID string, msgs []Message) ChatStats {
	stats := ChatStats{ChatID: chatID, TotalMessages: len(msgs)}
	if len(msgs) == 0 {
		return stats
	}
	users := make(map[string]struct{})
	for _, m := range msgs {
		users[m.UserID] = struct{}{}
	}
	stats.UniqueUsers = len(users)
	stats.OldestMessage = msgs[0].Timestamp
	stats.NewestMessage = msgs[len(msgs)-1].Timestamp
	return stats
}

// UserStats summarizes one user's presence across all chats
type UserStats struct {
	UserID        string    `json:"user_id"`
	TotalMessages int       `json:"total_messages"`
	ChatIDs       []string  `json:"chat_ids"`
	OldestMessage time.Time `json:"oldest_message"`
	NewestMessage time.Time `json:"newest_message"`
}
