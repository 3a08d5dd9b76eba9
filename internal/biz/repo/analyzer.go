package repo

import (
	"context"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
)

// AnalyzerRepo is the external analysis engine.
// Implementations return errors wrapping domain.ErrProvider for any failure.
type AnalyzerRepo interface {
	// GenerateReport turns a rendered prompt into report text
	GenerateReport(ctx context.Context, prompt domain.Prompt) (string, error)

	// Name identifies the provider in logs and metrics
	Name() string
}
