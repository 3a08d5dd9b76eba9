package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/usecase"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/feishu"
	"github.com/DevRickLin/feishu-chat-analyst/internal/service"
)

// seenTTL is how long a message id is remembered for deduplication
const seenTTL = 5 * time.Minute

// MessageSource is the inbound side of the Feishu client
type MessageSource interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	Stop()
}

// FeishuServer routes Feishu messages: group chatter is ingested, commands are dispatched
type FeishuServer struct {
	source  MessageSource
	chatUC  *usecase.ChatUsecase
	cmdSvc  *service.CommandService
	members repo.MemberDirectory
	logger  *slog.Logger

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> timestamp

	now func() time.Time
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(
	source MessageSource,
	chatUC *usecase.ChatUsecase,
	cmdSvc *service.CommandService,
	members repo.MemberDirectory,
	logger *slog.Logger,
) *FeishuServer {
	return &FeishuServer{
		source:   source,
		chatUC:   chatUC,
		cmdSvc:   cmdSvc,
		members:  members,
		logger:   logger.With("component", "server"),
		seenMsgs: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Start registers the handler and blocks while the Feishu connection runs
func (s *FeishuServer) Start(ctx context.Context) error {
	s.source.OnMessage(func(msg *feishu.Message) {
		s.handleMessage(ctx, msg)
	})
	return s.source.Start(ctx)
}

// Stop stops the server
func (s *FeishuServer) Stop() {
	s.source.Stop()
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(ctx context.Context, msg *feishu.Message) {
	if msg == nil || msg.Sender == nil || msg.Sender.SenderID == "" {
		return
	}

	if !s.markMessageSeen(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", "msg_id", msg.MsgID)
		return
	}

	chatType := domain.ChatTypeP2P
	if msg.ChatType == string(domain.ChatTypeGroup) {
		chatType = domain.ChatTypeGroup
	}

	if service.IsCommand(msg.Content, chatType) {
		mentions := make([]service.Mention, 0, len(msg.Mentions))
		for _, m := range msg.Mentions {
			mentions = append(mentions, service.Mention{UserID: m.UserID, Name: m.Name})
		}
		s.cmdSvc.Handle(ctx, &service.CommandRequest{
			ChatID:   msg.ChatID,
			ChatType: chatType,
			SenderID: msg.Sender.SenderID,
			Text:     msg.Content,
			Mentions: mentions,
		})
		return
	}

	// Only group chatter is analyzed; private messages are never stored
	if !chatType.IsGroup() || msg.Content == "" {
		return
	}

	ts := s.now()
	if msg.CreateTime > 0 {
		ts = time.UnixMilli(msg.CreateTime)
	}

	s.chatUC.Ingest(ctx, domain.Message{
		ID:        msg.MsgID,
		ChatID:    msg.ChatID,
		UserID:    msg.Sender.SenderID,
		Username:  s.senderName(ctx, msg.ChatID, msg.Sender.SenderID),
		Text:      msg.Content,
		Timestamp: ts,
	})
}

// senderName looks the sender up in the chat's member list; failures leave the name empty
func (s *FeishuServer) senderName(ctx context.Context, chatID, userID string) string {
	if s.members == nil {
		return ""
	}
	name, err := s.members.GetMemberName(ctx, chatID, userID)
	if err != nil {
		s.logger.Warn("failed to resolve sender name", "chat_id", chatID, "user_id", userID, "error", err)
		return ""
	}
	return name
}

// markMessageSeen records msgID and reports whether it was new.
// Expired records are dropped on each call.
func (s *FeishuServer) markMessageSeen(msgID string) bool {
	if msgID == "" {
		return true
	}

	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := s.now()
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}

	if _, exists := s.seenMsgs[msgID]; exists {
		return false
	}
	s.seenMsgs[msgID] = now
	return true
}
