package data

import (
	"fmt"
	"log/slog"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/openai"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

// Repositories contains all repositories
type Repositories struct {
	Store    repo.MessageStore
	Analyzer repo.AnalyzerRepo
	Notifier repo.Notifier
	Members  repo.MemberDirectory
}

// NewRepositories creates all repositories
func NewRepositories(
	feishuClient FeishuAPI,
	llmConfig openai.Config,
	bufferCapacity int,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Repositories, error) {
	llmClient, err := openai.NewClient(llmConfig)
	if err != nil {
		return nil, fmt.Errorf("create analysis client: %w", err)
	}
	logger.Info("analysis provider configured", "provider", llmClient.Provider(), "model", llmClient.Model())

	feishuRepo := NewFeishuRepo(feishuClient, logger)

	return &Repositories{
		Store:    NewMessageStore(bufferCapacity, m, logger.With("component", "store")),
		Analyzer: NewAnalyzerRepo(llmClient),
		Notifier: feishuRepo,
		Members:  feishuRepo,
	}, nil
}
