package feishu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTextContent_ReplacesMentions(t *testing.T) {
	content := `{"text":"@_user_1 /analyze_user @_user_2 24h"}`
	mentions := map[string]string{"@_user_1": "AnalystBot", "@_user_2": "Alice"}

	got := parseTextContent(content, mentions)
	assert.Equal(t, "@AnalystBot /analyze_user @Alice 24h", got)
}

func TestParseTextContent_InvalidJSON(t *testing.T) {
	assert.Equal(t, "", parseTextContent("not json", nil))
}

func TestParsePostContent(t *testing.T) {
	content := `{
		"title": "Weekly sync",
		"content": [
			[{"tag":"text","text":"Hello "},{"tag":"at","user_id":"@_user_1"}],
			[{"tag":"img","image_key":"img_1"}],
			[{"tag":"text","text":"see you"}]
		]
	}`
	mentions := map[string]string{"@_user_1": "Bob"}

	got := parsePostContent(content, mentions)
	assert.Equal(t, "Weekly sync\nHello @Bob\nsee you", got)
}

func TestReplaceMentions_NoMap(t *testing.T) {
	assert.Equal(t, "plain text", replaceMentions("plain text", nil))
}

func TestStripKeys_DropsBotMention(t *testing.T) {
	text := parseTextContent(`{"text":"@_user_1 /analyze_user @_user_2"}`, map[string]string{"@_user_2": "Alice"})
	assert.Equal(t, "/analyze_user @Alice", strings.TrimSpace(stripKeys(text, []string{"@_user_1"})))
}
