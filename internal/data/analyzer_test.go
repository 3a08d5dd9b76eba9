package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/openai"
)

// fakeCompletions serves the OpenAI chat completions endpoint
func fakeCompletions(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	client, err := openai.NewClient(openai.Config{
		Provider:    openai.ProviderOpenAI,
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Temperature: 0.5,
	})
	require.NoError(t, err)
	return client
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
}

func TestAnalyzerRepo_GenerateReport(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	client := fakeCompletions(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, "  ## Report\nAll good  ")
	})

	analyzer := NewAnalyzerRepo(client)
	report, err := analyzer.GenerateReport(context.Background(), domain.Prompt{System: "sys", User: "transcript"})
	require.NoError(t, err)

	assert.Equal(t, "## Report\nAll good", report)
	assert.Equal(t, "openai", analyzer.Name())
	assert.Equal(t, "gpt-4o", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "transcript", got.Messages[1].Content)
}

func TestAnalyzerRepo_ServerError(t *testing.T) {
	client := fakeCompletions(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	})

	_, err := NewAnalyzerRepo(client).GenerateReport(context.Background(), domain.Prompt{User: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, domain.ErrorKindProvider, domain.KindOf(err))
}

func TestAnalyzerRepo_EmptyReport(t *testing.T) {
	client := fakeCompletions(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "   ")
	})

	_, err := NewAnalyzerRepo(client).GenerateReport(context.Background(), domain.Prompt{User: "x"})
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestAnalyzerRepo_Timeout(t *testing.T) {
	client := fakeCompletions(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewAnalyzerRepo(client).GenerateReport(ctx, domain.Prompt{User: "x"})
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestNewClient_Providers(t *testing.T) {
	c, err := openai.NewClient(openai.Config{Provider: "moonshot", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "moonshot", c.Provider())
	assert.Equal(t, "moonshot-v1-32k", c.Model())

	_, err = openai.NewClient(openai.Config{Provider: "gigachat", APIKey: "k"})
	assert.Error(t, err)

	_, err = openai.NewClient(openai.Config{Provider: "openai"})
	assert.Error(t, err)
}
