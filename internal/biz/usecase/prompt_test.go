package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
)

func msgAt(userID, name, text string, minute int) domain.Message {
	return domain.Message{ChatID: "C1", UserID: userID, Username: name, Text: text, Timestamp: t0.Add(time.Duration(minute) * time.Minute)}
}

func TestPromptBuilder_Transcript(t *testing.T) {
	b := NewPromptBuilder(PromptConfig{})
	req := &domain.AnalysisRequest{Scope: domain.ScopeChat, ChatID: "C1"}
	g := &Gathered{Sections: []repo.ChatMessages{{ChatID: "C1", Messages: []domain.Message{
		msgAt("ou_1", "Alice", "multi\nline   text", 0),
		msgAt("ou_2", "", "anonymous", 5),
	}}}}

	prompt, err := b.Build(req, g)
	require.NoError(t, err)

	want := "Scope: chat\n" +
		"Chat: C1\n" +
		"Window: all buffered messages\n" +
		"Messages: 2\n" +
		"\n## Messages\n" +
		"[2024-03-01 09:00] Alice: multi line text\n" +
		"[2024-03-01 09:05] ou_2: anonymous\n"
	assert.Equal(t, want, prompt.User)
	assert.Equal(t, DefaultPromptConfig.ChatSystemPrompt, prompt.System)
}

func TestPromptBuilder_CustomConfig(t *testing.T) {
	b := NewPromptBuilder(PromptConfig{
		UserAllChatsSystemPrompt: "custom",
		ChatSectionTemplate:      "### {{chat_id}} / {{count}}",
	})
	req := &domain.AnalysisRequest{Scope: domain.ScopeUserAllChats, Limit: 5}
	g := &Gathered{
		TargetUserID: "ou_1",
		Sections: []repo.ChatMessages{
			{ChatID: "B", Messages: []domain.Message{msgAt("ou_1", "Alice", "b", 0)}},
			{ChatID: "A", Messages: []domain.Message{msgAt("ou_1", "Alice", "a", 1)}},
		},
	}

	prompt, err := b.Build(req, g)
	require.NoError(t, err)
	assert.Equal(t, "custom", prompt.System)
	assert.Contains(t, prompt.User, "### B / 1\n")
	assert.Contains(t, prompt.User, "Target: ou_1\n")
	assert.Contains(t, prompt.User, "Window: last 5 messages per chat\n")
	assert.Equal(t, DefaultPromptConfig.InsufficientDataReport, b.InsufficientDataReport())
}

func TestPromptBuilder_TooLarge(t *testing.T) {
	b := NewPromptBuilder(PromptConfig{ChatSystemPrompt: "s", MaxPromptChars: 80})
	req := &domain.AnalysisRequest{Scope: domain.ScopeChat, ChatID: "C1"}
	g := &Gathered{Sections: []repo.ChatMessages{{ChatID: "C1", Messages: []domain.Message{
		msgAt("ou_1", "Alice", "this line pushes the prompt past the limit", 0),
	}}}}

	_, err := b.Build(req, g)
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
}

func TestApplyWindow(t *testing.T) {
	msgs := []domain.Message{
		msgAt("u", "", "1", 0),
		msgAt("u", "", "2", 10),
		msgAt("u", "", "3", 20),
		msgAt("u", "", "4", 30),
	}

	assert.Len(t, applyWindow(msgs, 0, time.Time{}), 4)
	assert.Equal(t, "4", applyWindow(msgs, 1, time.Time{})[0].Text)
	assert.Len(t, applyWindow(msgs, 0, t0.Add(20*time.Minute)), 2)
	got := applyWindow(msgs, 1, t0.Add(5*time.Minute))
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].Text)
}
