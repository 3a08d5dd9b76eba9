package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/repo"
	"github.com/DevRickLin/feishu-chat-analyst/internal/data"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

const (
	mainAdmin = "ou_admin"
	helper    = "ou_helper"
	outsider  = "ou_outsider"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockAnalyzer records prompts and returns a canned report
type mockAnalyzer struct {
	mu      sync.Mutex
	prompts []domain.Prompt
	report  string
	err     error
	block   bool // wait for the context to end
}

func (m *mockAnalyzer) GenerateReport(ctx context.Context, prompt domain.Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.err != nil {
		return "", m.err
	}
	return m.report, nil
}

func (m *mockAnalyzer) Name() string { return "mock" }

func (m *mockAnalyzer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *mockAnalyzer) lastPrompt() domain.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[len(m.prompts)-1]
}

type fixture struct {
	store    repo.MessageStore
	access   *AccessController
	limiter  *RateLimiter
	analyzer *mockAnalyzer
	metrics  *metrics.Metrics
	uc       *AnalysisUsecase
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	access, err := NewAccessController([]string{mainAdmin, helper}, m, discardLogger())
	require.NoError(t, err)

	f := &fixture{
		store:    data.NewMessageStore(100, m, discardLogger()),
		access:   access,
		limiter:  NewRateLimiter(10 * time.Second),
		analyzer: &mockAnalyzer{report: "report"},
		metrics:  m,
		clock:    t0,
	}
	f.uc = NewAnalysisUsecase(f.access, f.limiter, f.store, f.analyzer, NewPromptBuilder(PromptConfig{}), time.Second, m, discardLogger())
	f.uc.now = func() time.Time { return f.clock }
	return f
}

// advance moves the fixture clock past the cooldown
func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) say(chatID, userID, name, text string, minute int) {
	f.store.Ingest(context.Background(), domain.Message{
		ID:        chatID + "-" + text,
		ChatID:    chatID,
		UserID:    userID,
		Username:  name,
		Text:      text,
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
	})
}
