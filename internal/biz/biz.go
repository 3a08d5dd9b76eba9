package biz

import (
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Access   *usecase.AccessController
	Limiter  *usecase.RateLimiter
	Chat     *usecase.ChatUsecase
	Analysis *usecase.AnalysisUsecase
}
