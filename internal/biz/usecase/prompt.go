package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
)

const (
	// DefaultMaxPromptChars bounds the rendered prompt
	DefaultMaxPromptChars = 60000

	// partnerWindow is how many neighbouring messages on each side count as an interaction
	partnerWindow = 5

	timestampLayout = "2006-01-02 15:04"
)

// PromptConfig contains prompt configuration
type PromptConfig struct {
	ChatSystemPrompt         string // System prompt for whole-chat analysis
	UserSystemPrompt         string // System prompt for one user in one chat
	UserAllChatsSystemPrompt string // System prompt for one user across chats
	TranscriptHeader         string // Heading above single-chat transcripts
	ChatSectionTemplate      string // Per-chat heading (supports {{chat_id}}, {{count}})
	PartnersHeader           string // Heading of the interaction partners digest
	InsufficientDataReport   string // Report returned when nothing was gathered
	MaxPromptChars           int    // Rendered size limit (0 = DefaultMaxPromptChars)
}

// DefaultPromptConfig contains default prompt configuration
var DefaultPromptConfig = PromptConfig{
	ChatSystemPrompt: `You analyze Feishu group chat transcripts for an administrator.
Summarize the main topics, decisions, open questions and the overall tone.
Name the most active participants and what they contributed.
Answer in the language most used in the transcript. Use short Markdown sections.`,
	UserSystemPrompt: `You analyze one participant of a Feishu group chat for an administrator.
Describe the person's main topics, communication style, recurring concerns and who they interact with most.
Base every statement on the transcript. Answer in the language most used in the transcript. Use short Markdown sections.`,
	UserAllChatsSystemPrompt: `You analyze one person's messages across several Feishu group chats for an administrator.
Compare their role and topics per chat, then summarize the common patterns, interests and interaction partners.
Base every statement on the transcript. Answer in the language most used in the transcript. Use short Markdown sections.`,
	TranscriptHeader:       "## Messages",
	ChatSectionTemplate:    "## Chat {{chat_id}} ({{count}} messages)",
	PartnersHeader:         "## Interaction partners (speakers within 5 messages)",
	InsufficientDataReport: "Insufficient data: no buffered messages match this request yet.",
	MaxPromptChars:         DefaultMaxPromptChars,
}

// Gathered is the input of the formatting stage
type Gathered struct {
	TargetUserID string
	TargetName   string
	Sections     []repo.ChatMessages // one entry per chat, first-seen order, oldest-first
	Context      []repo.ChatMessages // full chats around the target's messages, for the partners digest
}

// Count returns the number of gathered messages
func (g *Gathered) Count() int {
	n := 0
	for _, s := range g.Sections {
		n += len(s.Messages)
	}
	return n
}

// PromptBuilder renders gathered messages into a prompt
type PromptBuilder struct {
	cfg PromptConfig
}

// NewPromptBuilder creates a builder, filling empty fields from DefaultPromptConfig
func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	d := DefaultPromptConfig
	if cfg.ChatSystemPrompt == "" {
		cfg.ChatSystemPrompt = d.ChatSystemPrompt
	}
	if cfg.UserSystemPrompt == "" {
		cfg.UserSystemPrompt = d.UserSystemPrompt
	}
	if cfg.UserAllChatsSystemPrompt == "" {
		cfg.UserAllChatsSystemPrompt = d.UserAllChatsSystemPrompt
	}
	if cfg.TranscriptHeader == "" {
		cfg.TranscriptHeader = d.TranscriptHeader
	}
	if cfg.ChatSectionTemplate == "" {
		cfg.ChatSectionTemplate = d.ChatSectionTemplate
	}
	if cfg.PartnersHeader == "" {
		cfg.PartnersHeader = d.PartnersHeader
	}
	if cfg.InsufficientDataReport == "" {
		cfg.InsufficientDataReport = d.InsufficientDataReport
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = DefaultMaxPromptChars
	}
	return &PromptBuilder{cfg: cfg}
}

// InsufficientDataReport returns the report used for empty gathers
func (b *PromptBuilder) InsufficientDataReport() string {
	return b.cfg.InsufficientDataReport
}

// MaxPromptChars returns the rendered size limit
func (b *PromptBuilder) MaxPromptChars() int {
	return b.cfg.MaxPromptChars
}

// Build renders the prompt. Messages keep their chronological order and speaker;
// a prompt over the size limit fails with domain.ErrPayloadTooLarge instead of being cut.
func (b *PromptBuilder) Build(req *domain.AnalysisRequest, g *Gathered) (domain.Prompt, error) {
	var sb strings.Builder
	b.writeHeader(&sb, req, g)

	switch req.Scope {
	case domain.ScopeUserAllChats:
		for _, section := range g.Sections {
			sb.WriteString("\n")
			heading := strings.ReplaceAll(b.cfg.ChatSectionTemplate, "{{chat_id}}", section.ChatID)
			heading = strings.ReplaceAll(heading, "{{count}}", fmt.Sprint(len(section.Messages)))
			sb.WriteString(heading)
			sb.WriteString("\n")
			writeTranscript(&sb, section.Messages)
		}
	default:
		sb.WriteString("\n")
		sb.WriteString(b.cfg.TranscriptHeader)
		sb.WriteString("\n")
		for _, section := range g.Sections {
			writeTranscript(&sb, section.Messages)
		}
	}

	if req.Scope.IsUserScope() {
		if partners := interactionPartners(g.TargetUserID, g.Context); len(partners) > 0 {
			sb.WriteString("\n")
			sb.WriteString(b.cfg.PartnersHeader)
			sb.WriteString("\n")
			for _, p := range partners {
				fmt.Fprintf(&sb, "- %s: %d\n", p.name, p.count)
			}
		}
	}

	prompt := domain.Prompt{System: b.systemPrompt(req.Scope), User: sb.String()}
	if n := prompt.Len(); n > b.cfg.MaxPromptChars {
		return domain.Prompt{}, fmt.Errorf("prompt is %d chars, limit %d: %w", n, b.cfg.MaxPromptChars, domain.ErrPayloadTooLarge)
	}
	return prompt, nil
}

func (b *PromptBuilder) systemPrompt(scope domain.Scope) string {
	switch scope {
	case domain.ScopeUser:
		return b.cfg.UserSystemPrompt
	case domain.ScopeUserAllChats:
		return b.cfg.UserAllChatsSystemPrompt
	default:
		return b.cfg.ChatSystemPrompt
	}
}

func (b *PromptBuilder) writeHeader(sb *strings.Builder, req *domain.AnalysisRequest, g *Gathered) {
	fmt.Fprintf(sb, "Scope: %s\n", req.Scope)
	if req.ChatID != "" && req.Scope != domain.ScopeUserAllChats {
		fmt.Fprintf(sb, "Chat: %s\n", req.ChatID)
	}
	if req.Scope.IsUserScope() {
		if g.TargetName != "" {
			fmt.Fprintf(sb, "Target: %s (%s)\n", g.TargetName, g.TargetUserID)
		} else {
			fmt.Fprintf(sb, "Target: %s\n", g.TargetUserID)
		}
	}
	fmt.Fprintf(sb, "Window: %s\n", describeWindow(req))
	fmt.Fprintf(sb, "Messages: %d\n", g.Count())
	if req.Scope == domain.ScopeUserAllChats {
		fmt.Fprintf(sb, "Chats: %d\n", len(g.Sections))
	}
}

func describeWindow(req *domain.AnalysisRequest) string {
	var parts []string
	if req.Limit > 0 {
		if req.Scope == domain.ScopeUserAllChats {
			parts = append(parts, fmt.Sprintf("last %d messages per chat", req.Limit))
		} else {
			parts = append(parts, fmt.Sprintf("last %d messages", req.Limit))
		}
	}
	if !req.Since.IsZero() {
		parts = append(parts, "since "+req.Since.Format(timestampLayout))
	}
	if len(parts) == 0 {
		return "all buffered messages"
	}
	return strings.Join(parts, ", ")
}

// writeTranscript writes one line per message: [YYYY-MM-DD HH:MM] Name: text
func writeTranscript(sb *strings.Builder, msgs []domain.Message) {
	for _, m := range msgs {
		fmt.Fprintf(sb, "[%s] %s: %s\n", m.Timestamp.Format(timestampLayout), m.Speaker(), oneLine(m.Text))
	}
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

type partner struct {
	userID string
	name   string
	count  int
}

// interactionPartners counts, for every message of userID, the other speakers
// within partnerWindow messages on either side.
func interactionPartners(userID string, chats []repo.ChatMessages) []partner {
	byID := make(map[string]*partner)
	for _, chat := range chats {
		msgs := chat.Messages
		for i, m := range msgs {
			if m.UserID != userID {
				continue
			}
			lo := max(0, i-partnerWindow)
			hi := min(len(msgs)-1, i+partnerWindow)
			for j := lo; j <= hi; j++ {
				other := msgs[j]
				if other.UserID == userID || other.UserID == "" {
					continue
				}
				p, ok := byID[other.UserID]
				if !ok {
					p = &partner{userID: other.UserID}
					byID[other.UserID] = p
				}
				p.name = other.Speaker()
				p.count++
			}
		}
	}

	out := make([]partner, 0, len(byID))
	for _, p := range byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].userID < out[j].userID
	})
	return out
}

// applyWindow keeps messages at or after since, then the last limit of them
func applyWindow(msgs []domain.Message, limit int, since time.Time) []domain.Message {
	if !since.IsZero() {
		kept := make([]domain.Message, 0, len(msgs))
		for _, m := range msgs {
			if !m.IsBefore(since) {
				kept = append(kept, m)
			}
		}
		msgs = kept
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}
