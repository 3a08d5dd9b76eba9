package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/usecase"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

// Command names
const (
	CmdStart          = "/start"
	CmdHelp           = "/help"
	CmdAnalyze        = "/analyze"
	CmdAnalyzeLast100 = "/analyze_last_100"
	CmdAnalyzeLast24h = "/analyze_last_24h"
	CmdAnalyzeUser    = "/analyze_user"
	CmdAnalyzeUserAll = "/analyze_user_all"
	CmdStats          = "/stats"
	CmdClear          = "/clear"
	CmdAdminAdd       = "/admin_add"
	CmdAdminRemove    = "/admin_remove"
	CmdAdmins         = "/admins"
)

const helpText = `Chat analyst commands

In a group chat:
/analyze [N | Nh] - analyze this chat (optionally the last N messages or the last N hours)
/analyze_last_100 - analyze the last 100 messages
/analyze_last_24h - analyze the last 24 hours
/analyze_user <@user | open_id | name> [N | Nh] - analyze one member in this chat
/stats - message statistics of this chat
/clear - drop this chat's buffered messages (main admin)

Anywhere:
/analyze_user_all <@user | open_id | name> [N | Nh] - analyze one user across all chats
/admins - list authorized users
/admin_add <@user | open_id> - authorize a user (main admin)
/admin_remove <@user | open_id> - revoke a user (main admin)

Reports and replies are always sent to you privately.`

// errorMessages are the user-visible texts per failure kind. They never include internal details.
var errorMessages = map[domain.ErrorKind]string{
	domain.ErrorKindPermissionDenied: "You are not authorized to use this command.",
	domain.ErrorKindRateLimited:      "Please wait a few seconds before sending another command.",
	domain.ErrorKindInvalidTarget:    "User not found. Mention the user, or give their open_id or exact display name.",
	domain.ErrorKindAmbiguousTarget:  "Several users share that name. Mention the user or give their open_id instead.",
	domain.ErrorKindPayloadTooLarge:  "Too many messages to analyze at once. Narrow the request, for example /analyze 200 or /analyze 24h.",
	domain.ErrorKindProvider:         "The analysis service is unavailable right now. Please try again later.",
	domain.ErrorKindInternal:         "Something went wrong. Please try again later.",
}

// ErrorMessage returns the user-visible text for err
func ErrorMessage(err error) string {
	if msg, ok := errorMessages[domain.KindOf(err)]; ok {
		return msg
	}
	return errorMessages[domain.ErrorKindInternal]
}

// Mention is a user mentioned in a command, bot excluded
type Mention struct {
	UserID string
	Name   string
}

// CommandRequest represents an inbound command message
type CommandRequest struct {
	ChatID   string
	ChatType domain.ChatType
	SenderID string
	Text     string
	Mentions []Mention
}

// Command is a parsed command line
type Command struct {
	Name string
	Args []string
}

var knownCommands = map[string]struct{}{
	CmdStart: {}, CmdHelp: {}, CmdAnalyze: {}, CmdAnalyzeLast100: {}, CmdAnalyzeLast24h: {},
	CmdAnalyzeUser: {}, CmdAnalyzeUserAll: {}, CmdStats: {}, CmdClear: {},
	CmdAdminAdd: {}, CmdAdminRemove: {}, CmdAdmins: {},
}

// IsCommand reports whether text is a command this service handles in a chat of chatType.
// In groups only known commands qualify.
func IsCommand(text string, chatType domain.ChatType) bool {
	cmd, ok := ParseCommand(text)
	if !ok {
		return false
	}
	if !chatType.IsGroup() {
		return true
	}
	_, known := knownCommands[cmd.Name]
	return known
}

// ParseCommand finds the first "/word" token. Leading mentions are skipped,
// and a "@botname" suffix on the command itself is dropped.
func ParseCommand(text string) (Command, bool) {
	fields := strings.Fields(text)
	for i, f := range fields {
		if strings.HasPrefix(f, "@") {
			continue
		}
		if !strings.HasPrefix(f, "/") || len(f) < 2 {
			return Command{}, false
		}
		name := strings.ToLower(f)
		if at := strings.Index(name, "@"); at > 0 {
			name = name[:at]
		}
		return Command{Name: name, Args: fields[i+1:]}, true
	}
	return Command{}, false
}

// CommandService dispatches commands and delivers every reply privately
type CommandService struct {
	access     *usecase.AccessController
	chatUC     *usecase.ChatUsecase
	analysisUC *usecase.AnalysisUsecase
	notifier   repo.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	now func() time.Time
}

// NewCommandService creates a new command service
func NewCommandService(
	access *usecase.AccessController,
	chatUC *usecase.ChatUsecase,
	analysisUC *usecase.AnalysisUsecase,
	notifier repo.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CommandService {
	return &CommandService{
		access:     access,
		chatUC:     chatUC,
		analysisUC: analysisUC,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle executes one command. Unknown commands in groups are ignored,
// since other bots may share the chat.
func (s *CommandService) Handle(ctx context.Context, req *CommandRequest) {
	cmd, ok := ParseCommand(req.Text)
	if !ok {
		return
	}
	logger := s.logger.With("command", cmd.Name, "user_id", req.SenderID, "chat_id", req.ChatID)
	logger.Info("command received")

	group := req.ChatType.IsGroup()

	switch cmd.Name {
	case CmdStart, CmdHelp:
		if group {
			return
		}
		s.reply(ctx, req.SenderID, helpText)

	case CmdAnalyze, CmdAnalyzeLast100, CmdAnalyzeLast24h:
		if !s.requireGroup(ctx, req) {
			return
		}
		limit, since, _, err := s.parseWindow(aliasArgs(cmd))
		if err != nil {
			s.reply(ctx, req.SenderID, "Usage: /analyze [N | Nh], for example /analyze 200 or /analyze 24h")
			return
		}
		s.analyze(ctx, &domain.AnalysisRequest{
			RequesterID: req.SenderID,
			Scope:       domain.ScopeChat,
			ChatID:      req.ChatID,
			Limit:       limit,
			Since:       since,
		})

	case CmdAnalyzeUser, CmdAnalyzeUserAll:
		scope := domain.ScopeUserAllChats
		if cmd.Name == CmdAnalyzeUser {
			if !s.requireGroup(ctx, req) {
				return
			}
			scope = domain.ScopeUser
		}
		target, limit, since, err := s.parseTarget(cmd.Args, req.Mentions)
		if err != nil {
			s.reply(ctx, req.SenderID, fmt.Sprintf("Usage: %s <@user | open_id | name> [N | Nh]", cmd.Name))
			return
		}
		analysisReq := &domain.AnalysisRequest{
			RequesterID: req.SenderID,
			Scope:       scope,
			Target:      target,
			Limit:       limit,
			Since:       since,
		}
		if scope == domain.ScopeUser {
			analysisReq.ChatID = req.ChatID
		}
		s.analyze(ctx, analysisReq)

	case CmdStats:
		if !s.requireGroup(ctx, req) {
			return
		}
		stats, err := s.chatUC.ChatStats(ctx, req.SenderID, req.ChatID)
		if err != nil {
			s.replyError(ctx, logger, req.SenderID, err)
			return
		}
		s.reply(ctx, req.SenderID, formatChatStats(stats))

	case CmdClear:
		if !s.requireGroup(ctx, req) {
			return
		}
		n, err := s.chatUC.ClearChat(ctx, req.SenderID, req.ChatID)
		if err != nil {
			s.replyError(ctx, logger, req.SenderID, err)
			return
		}
		s.reply(ctx, req.SenderID, fmt.Sprintf("Cleared %d buffered messages of chat %s.", n, req.ChatID))

	case CmdAdmins:
		if !s.access.IsAuthorized(req.SenderID) {
			s.replyError(ctx, logger, req.SenderID, domain.ErrPermissionDenied)
			return
		}
		s.reply(ctx, req.SenderID, formatAdmins(s.access.List()))

	case CmdAdminAdd, CmdAdminRemove:
		target := userIDArg(cmd.Args, req.Mentions)
		var changed bool
		var err error
		if cmd.Name == CmdAdminAdd {
			changed, err = s.access.AddUser(req.SenderID, target)
		} else {
			changed, err = s.access.RemoveUser(req.SenderID, target)
		}
		if err != nil {
			s.replyError(ctx, logger, req.SenderID, err)
			return
		}
		s.reply(ctx, req.SenderID, adminChangeText(cmd.Name, target, changed))

	default:
		if !group {
			s.reply(ctx, req.SenderID, "Unknown command. Send /help for the list of commands.")
		}
	}
}

func (s *CommandService) analyze(ctx context.Context, req *domain.AnalysisRequest) {
	res := s.analysisUC.Run(ctx, req)
	if !res.OK() {
		s.deliver(ctx, res, ErrorMessage(res.Err))
		return
	}

	var header string
	switch req.Scope {
	case domain.ScopeChat:
		header = fmt.Sprintf("Chat analysis of %s (%d messages)", req.ChatID, res.MessageCount)
	case domain.ScopeUser:
		header = fmt.Sprintf("User analysis in %s (%d messages)", req.ChatID, res.MessageCount)
	case domain.ScopeUserAllChats:
		header = fmt.Sprintf("Cross-chat user analysis (%d messages)", res.MessageCount)
		stats, err := s.chatUC.UserStats(ctx, req.RequesterID, res.TargetUserID)
		if err != nil {
			s.logger.Warn("user stats unavailable", "request_id", res.RequestID, "error", err)
		} else {
			header += "\n" + formatUserStats(stats)
		}
	}
	s.deliver(ctx, res, header+"\n\n"+res.Report)
}

// deliver sends a result to its recipient; results only ever go to private chats
func (s *CommandService) deliver(ctx context.Context, res *domain.AnalysisResult, text string) {
	if res.Delivery != domain.DeliveryPrivate || res.Recipient == "" {
		s.logger.Error("refusing non-private delivery", "request_id", res.RequestID)
		return
	}
	s.reply(ctx, res.Recipient, text)
}

func (s *CommandService) reply(ctx context.Context, userID, text string) {
	if err := s.notifier.SendPrivate(ctx, userID, text); err != nil {
		s.metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		s.logger.Error("private delivery failed", "user_id", userID, "error", err)
		return
	}
	s.metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
}

func (s *CommandService) replyError(ctx context.Context, logger *slog.Logger, userID string, err error) {
	logger.Warn("command rejected", "kind", string(domain.KindOf(err)), "error", err)
	s.reply(ctx, userID, ErrorMessage(err))
}

func (s *CommandService) requireGroup(ctx context.Context, req *CommandRequest) bool {
	if req.ChatType.IsGroup() {
		return true
	}
	s.reply(ctx, req.SenderID, "This command only works in a group chat.")
	return false
}

// aliasArgs expands the fixed-window aliases into /analyze arguments
func aliasArgs(cmd Command) []string {
	switch cmd.Name {
	case CmdAnalyzeLast100:
		return []string{"100"}
	case CmdAnalyzeLast24h:
		return []string{"24h"}
	default:
		return cmd.Args
	}
}

// parseWindow reads an optional trailing window argument: N messages, Nh hours or Nd days.
// It returns the arguments before the window.
func (s *CommandService) parseWindow(args []string) (limit int, since time.Time, rest []string, err error) {
	if len(args) == 0 {
		return 0, time.Time{}, nil, nil
	}
	last := strings.ToLower(args[len(args)-1])
	rest = args[:len(args)-1]

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(last, "h"):
		unit = time.Hour
	case strings.HasSuffix(last, "d"):
		unit = 24 * time.Hour
	}
	digits := last
	if unit != 0 {
		digits = last[:len(last)-1]
	}
	n, convErr := strconv.Atoi(digits)
	if convErr != nil {
		return 0, time.Time{}, args, fmt.Errorf("not a window: %q", last)
	}
	if n <= 0 {
		return 0, time.Time{}, args, fmt.Errorf("window must be positive: %q", last)
	}
	if unit != 0 {
		return 0, s.now().Add(-time.Duration(n) * unit), rest, nil
	}
	return n, time.Time{}, rest, nil
}

// parseTarget takes the target from the first mention, or from the arguments
// as an open_id or a display name. An optional window may follow.
func (s *CommandService) parseTarget(args []string, mentions []Mention) (domain.Target, int, time.Time, error) {
	limit, since, rest, err := s.parseWindow(args)
	if err != nil {
		// No window given; every argument belongs to the target
		limit, since, rest = 0, time.Time{}, args
	}

	if len(mentions) > 0 {
		return domain.Target{UserID: mentions[0].UserID, DisplayName: mentions[0].Name}, limit, since, nil
	}

	raw := strings.TrimSpace(strings.Join(rest, " "))
	if raw == "" {
		return domain.Target{}, 0, time.Time{}, fmt.Errorf("missing target")
	}
	if isOpenID(raw) {
		return domain.Target{UserID: raw}, limit, since, nil
	}
	return domain.Target{DisplayName: raw}, limit, since, nil
}

// userIDArg returns the mentioned user's id, or the first argument
func userIDArg(args []string, mentions []Mention) string {
	if len(mentions) > 0 {
		return mentions[0].UserID
	}
	if len(args) > 0 {
		return strings.TrimSpace(args[0])
	}
	return ""
}

func isOpenID(s string) bool {
	return strings.HasPrefix(s, "ou_") && !strings.ContainsAny(s, " \t")
}

func formatChatStats(st domain.ChatStats) string {
	if st.TotalMessages == 0 {
		return fmt.Sprintf("No buffered messages in chat %s yet.", st.ChatID)
	}
	return fmt.Sprintf("Chat %s\nMessages: %d\nUnique users: %d\nOldest: %s\nNewest: %s",
		st.ChatID, st.TotalMessages, st.UniqueUsers,
		st.OldestMessage.Format("2006-01-02 15:04"), st.NewestMessage.Format("2006-01-02 15:04"))
}

func formatUserStats(st domain.UserStats) string {
	if st.TotalMessages == 0 {
		return fmt.Sprintf("User %s has no buffered messages yet.", st.UserID)
	}
	return fmt.Sprintf("User %s\nMessages: %d in %d chats\nOldest: %s\nNewest: %s",
		st.UserID, st.TotalMessages, len(st.ChatIDs),
		st.OldestMessage.Format("2006-01-02 15:04"), st.NewestMessage.Format("2006-01-02 15:04"))
}

func formatAdmins(users []string) string {
	var sb strings.Builder
	sb.WriteString("Authorized users:\n")
	for i, id := range users {
		if i == 0 {
			fmt.Fprintf(&sb, "- %s (main admin)\n", id)
		} else {
			fmt.Fprintf(&sb, "- %s\n", id)
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func adminChangeText(cmd, target string, changed bool) string {
	switch {
	case cmd == CmdAdminAdd && changed:
		return fmt.Sprintf("User %s is now authorized.", target)
	case cmd == CmdAdminAdd:
		return fmt.Sprintf("User %s was already authorized.", target)
	case changed:
		return fmt.Sprintf("User %s is no longer authorized.", target)
	default:
		return fmt.Sprintf("User %s was not authorized.", target)
	}
}
