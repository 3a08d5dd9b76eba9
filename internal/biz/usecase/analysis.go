package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

// DefaultProviderTimeout bounds one analysis provider call
const DefaultProviderTimeout = 90 * time.Second

// AnalysisUsecase runs analysis requests through the gate, the store and the provider
type AnalysisUsecase struct {
	access   *AccessController
	limiter  *RateLimiter
	store    repo.MessageStore
	analyzer repo.AnalyzerRepo
	prompts  *PromptBuilder
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	now func() time.Time
}

// NewAnalysisUsecase creates a new analysis usecase
func NewAnalysisUsecase(
	access *AccessController,
	limiter *RateLimiter,
	store repo.MessageStore,
	analyzer repo.AnalyzerRepo,
	prompts *PromptBuilder,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AnalysisUsecase {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &AnalysisUsecase{
		access:   access,
		limiter:  limiter,
		store:    store,
		analyzer: analyzer,
		prompts:  prompts,
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// run tracks one request through its stages
type run struct {
	req     *domain.AnalysisRequest
	stage   domain.Stage
	started time.Time
	target  string
	logger  *slog.Logger
}

// Run executes req and returns its terminal result. It never returns nil.
// The result is always addressed to the requester for private delivery.
func (uc *AnalysisUsecase) Run(ctx context.Context, req *domain.AnalysisRequest) *domain.AnalysisResult {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r := &run{
		req:     req,
		stage:   domain.StageReceived,
		started: uc.now(),
		logger: uc.logger.With(
			"request_id", req.ID,
			"scope", string(req.Scope),
			"user_id", req.RequesterID,
			"chat_id", req.ChatID,
		),
	}
	r.logger.Info("analysis request received")

	r.stage = domain.StageAuthorizing
	if !uc.access.IsAuthorized(req.RequesterID) {
		uc.metrics.PermissionDeniedTotal.WithLabelValues("analyze").Inc()
		return uc.fail(r, fmt.Errorf("analyze: %w", domain.ErrPermissionDenied))
	}

	r.stage = domain.StageRateChecking
	if !uc.limiter.TryAcquire(req.RequesterID, uc.now()) {
		uc.metrics.RateLimitedTotal.Inc()
		return uc.fail(r, fmt.Errorf("analyze: cooldown %s: %w", uc.limiter.Cooldown(), domain.ErrRateLimited))
	}

	r.stage = domain.StageGathering
	gathered, err := uc.gather(ctx, req)
	if err != nil {
		return uc.fail(r, err)
	}
	r.target = gathered.TargetUserID

	r.stage = domain.StageFormatting
	count := gathered.Count()
	if count == 0 {
		r.logger.Info("nothing to analyze")
		return uc.complete(r, uc.prompts.InsufficientDataReport(), 0)
	}
	prompt, err := uc.prompts.Build(req, gathered)
	if err != nil {
		return uc.fail(r, err)
	}
	uc.metrics.PromptChars.Observe(float64(prompt.Len()))

	r.stage = domain.StageInvoking
	report, err := uc.invoke(ctx, r, prompt)
	if err != nil {
		return uc.fail(r, err)
	}

	return uc.complete(r, report, count)
}

// gather resolves the target and reads the messages the scope covers
func (uc *AnalysisUsecase) gather(ctx context.Context, req *domain.AnalysisRequest) (*Gathered, error) {
	switch req.Scope {
	case domain.ScopeChat:
		if req.ChatID == "" {
			return nil, fmt.Errorf("chat scope without chat: %w", domain.ErrInvalidTarget)
		}
		msgs := applyWindow(uc.store.ReadChat(ctx, req.ChatID), req.Limit, req.Since)
		return &Gathered{Sections: sections(req.ChatID, msgs)}, nil

	case domain.ScopeUser:
		if req.ChatID == "" {
			return nil, fmt.Errorf("user scope without chat: %w", domain.ErrInvalidTarget)
		}
		userID, err := uc.resolveTarget(ctx, req.ChatID, req.Target)
		if err != nil {
			return nil, err
		}
		chat := applyWindow(uc.store.ReadChat(ctx, req.ChatID), 0, req.Since)
		var mine []domain.Message
		for _, m := range chat {
			if m.UserID == userID {
				mine = append(mine, m)
			}
		}
		mine = applyWindow(mine, req.Limit, time.Time{})
		return &Gathered{
			TargetUserID: userID,
			TargetName:   speakerName(userID, mine),
			Sections:     sections(req.ChatID, mine),
			Context:      []repo.ChatMessages{{ChatID: req.ChatID, Messages: chat}},
		}, nil

	case domain.ScopeUserAllChats:
		userID, err := uc.resolveTarget(ctx, "", req.Target)
		if err != nil {
			return nil, err
		}
		g := &Gathered{TargetUserID: userID}
		for _, cm := range uc.store.ReadUserAcrossChats(ctx, userID) {
			msgs := applyWindow(cm.Messages, req.Limit, req.Since)
			if len(msgs) == 0 {
				continue
			}
			g.Sections = append(g.Sections, repo.ChatMessages{ChatID: cm.ChatID, Messages: msgs})
			g.Context = append(g.Context, repo.ChatMessages{
				ChatID:   cm.ChatID,
				Messages: applyWindow(uc.store.ReadChat(ctx, cm.ChatID), 0, req.Since),
			})
			if g.TargetName == "" {
				g.TargetName = speakerName(userID, msgs)
			}
		}
		return g, nil

	default:
		return nil, fmt.Errorf("unknown scope %q: %w", req.Scope, domain.ErrInvalidTarget)
	}
}

// resolveTarget returns the target user id, looking display names up in the store.
// A non-empty chatID limits the name lookup to that chat.
func (uc *AnalysisUsecase) resolveTarget(ctx context.Context, chatID string, t domain.Target) (string, error) {
	if id := strings.TrimSpace(t.UserID); id != "" {
		return id, nil
	}
	name := strings.TrimSpace(t.DisplayName)
	if name == "" {
		return "", fmt.Errorf("no target given: %w", domain.ErrInvalidTarget)
	}

	var ids []string
	if chatID != "" {
		ids = uc.store.FindUsersByNameInChat(ctx, chatID, name)
	} else {
		ids = uc.store.FindUsersByName(ctx, name)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no user named %q: %w", name, domain.ErrInvalidTarget)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%d users named %q: %w", len(ids), name, domain.ErrAmbiguousTarget)
	}
}

// invoke calls the provider without holding any lock, bounded by the timeout
func (uc *AnalysisUsecase) invoke(ctx context.Context, r *run, prompt domain.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	r.logger.Info("invoking analysis provider", "provider", uc.analyzer.Name(), "prompt_chars", prompt.Len())
	start := uc.now()
	report, err := uc.analyzer.GenerateReport(callCtx, prompt)
	uc.metrics.RecordProviderCall(uc.analyzer.Name(), uc.now().Sub(start), err)
	if err != nil {
		if domain.KindOf(err) != domain.ErrorKindProvider {
			err = fmt.Errorf("%w: %w", domain.ErrProvider, err)
		}
		return "", err
	}
	return report, nil
}

func (uc *AnalysisUsecase) complete(r *run, report string, count int) *domain.AnalysisResult {
	uc.metrics.RecordAnalysis(string(r.req.Scope), "completed", uc.now().Sub(r.started))
	r.logger.Info("analysis completed", "messages", count, "report_chars", len([]rune(report)))
	return &domain.AnalysisResult{
		RequestID:    r.req.ID,
		Recipient:    r.req.RequesterID,
		Delivery:     domain.DeliveryPrivate,
		Stage:        domain.StageCompleted,
		Report:       report,
		TargetUserID: r.target,
		MessageCount: count,
	}
}

func (uc *AnalysisUsecase) fail(r *run, err error) *domain.AnalysisResult {
	kind := domain.KindOf(err)
	uc.metrics.RecordAnalysis(string(r.req.Scope), string(kind), uc.now().Sub(r.started))
	r.logger.Warn("analysis failed", "stage", string(r.stage), "kind", string(kind), "error", err)
	return &domain.AnalysisResult{
		RequestID:    r.req.ID,
		Recipient:    r.req.RequesterID,
		Delivery:     domain.DeliveryPrivate,
		Stage:        domain.StageFailed,
		FailedAt:     r.stage,
		TargetUserID: r.target,
		Kind:         kind,
		Err:          err,
	}
}

func sections(chatID string, msgs []domain.Message) []repo.ChatMessages {
	if len(msgs) == 0 {
		return nil
	}
	return []repo.ChatMessages{{ChatID: chatID, Messages: msgs}}
}

// speakerName returns the latest non-empty username userID posted under
func speakerName(userID string, msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].UserID == userID && msgs[i].Username != "" {
			return msgs[i].Username
		}
	}
	return ""
}
