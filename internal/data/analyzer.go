package data

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/openai"
)

// ChatCompleter is the slice of the OpenAI-compatible client the analyzer needs
type ChatCompleter interface {
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
	Provider() string
}

// analyzerRepo implements repo.AnalyzerRepo on top of a chat completion client
type analyzerRepo struct {
	client ChatCompleter
}

// NewAnalyzerRepo creates an analyzer backed by client
func NewAnalyzerRepo(client ChatCompleter) repo.AnalyzerRepo {
	return &analyzerRepo{client: client}
}

// GenerateReport sends the prompt and returns the report text.
// Every failure, including an empty answer, wraps domain.ErrProvider.
func (r *analyzerRepo) GenerateReport(ctx context.Context, prompt domain.Prompt) (string, error) {
	report, err := r.client.Chat(ctx, prompt.System, prompt.User)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s: timed out: %w", domain.ErrProvider, r.client.Provider(), err)
		}
		if errors.Is(err, openai.ErrEmptyResponse) {
			return "", fmt.Errorf("%w: %s: malformed response: %w", domain.ErrProvider, r.client.Provider(), err)
		}
		return "", fmt.Errorf("%w: %s: %w", domain.ErrProvider, r.client.Provider(), err)
	}

	report = strings.TrimSpace(report)
	if report == "" {
		return "", fmt.Errorf("%w: %s: empty report", domain.ErrProvider, r.client.Provider())
	}
	return report, nil
}

// Name returns the provider name
func (r *analyzerRepo) Name() string {
	return r.client.Provider()
}
