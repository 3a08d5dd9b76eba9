package data

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/feishu"
)

type mockFeishuAPI struct {
	mu          sync.Mutex
	members     []*feishu.ChatMember
	memberCalls int
	membersErr  error
	sent        map[string][]string
}

func (m *mockFeishuAPI) SendPrivate(ctx context.Context, openID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string][]string)
	}
	m.sent[openID] = append(m.sent[openID], text)
	return nil
}

func (m *mockFeishuAPI) GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberCalls++
	return m.members, m.membersErr
}

func TestFeishuRepo_GetMemberNameCaches(t *testing.T) {
	api := &mockFeishuAPI{members: []*feishu.ChatMember{
		{MemberID: "ou_1", Name: "Alice"},
		{MemberID: "ou_2", Name: "Bob"},
	}}
	r := NewFeishuRepo(api, discardLogger())
	ctx := context.Background()

	name, err := r.GetMemberName(ctx, "oc_1", "ou_1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	name, err = r.GetMemberName(ctx, "oc_1", "ou_2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
	assert.Equal(t, 1, api.memberCalls)

	// Unknown senders are remembered as empty names
	name, err = r.GetMemberName(ctx, "oc_1", "ou_9")
	require.NoError(t, err)
	assert.Empty(t, name)
	_, _ = r.GetMemberName(ctx, "oc_1", "ou_9")
	assert.Equal(t, 2, api.memberCalls)
}

func TestFeishuRepo_GetMemberNameError(t *testing.T) {
	api := &mockFeishuAPI{membersErr: errors.New("forbidden")}
	r := NewFeishuRepo(api, discardLogger())

	_, err := r.GetMemberName(context.Background(), "oc_1", "ou_1")
	assert.Error(t, err)
}

func TestFeishuRepo_SendPrivate(t *testing.T) {
	api := &mockFeishuAPI{}
	r := NewFeishuRepo(api, discardLogger())

	require.NoError(t, r.SendPrivate(context.Background(), "ou_1", "report"))
	assert.Equal(t, []string{"report"}, api.sent["ou_1"])
}
