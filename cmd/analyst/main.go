package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/DevRickLin/feishu-chat-analyst/internal/api"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz"
	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/usecase"
	"github.com/DevRickLin/feishu-chat-analyst/internal/conf"
	"github.com/DevRickLin/feishu-chat-analyst/internal/data"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/feishu"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
	"github.com/DevRickLin/feishu-chat-analyst/internal/server"
	"github.com/DevRickLin/feishu-chat-analyst/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "analyst: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := pflag.String("env-file", conf.DefaultEnvFile, "dotenv file to load before reading the environment")
	promptsPath := pflag.String("prompts", "", "prompts YAML (overrides PROMPTS_CONFIG_PATH)")
	pflag.Parse()

	// Load configuration
	cfg, err := conf.Load(*envFile)
	if err != nil {
		return err
	}
	if *promptsPath != "" {
		cfg.PromptsPath = *promptsPath
	}

	logger := conf.NewLogger(cfg.Log)

	prompts, err := conf.LoadPromptsConfig(cfg.PromptsPath, logger)
	if err != nil {
		return err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)

	// Initialize repository layer
	repos, err := data.NewRepositories(feishuClient, cfg.AI.ToClientConfig(), cfg.Analysis.BufferCapacity, m, logger)
	if err != nil {
		return err
	}

	// Initialize usecase layer
	access, err := usecase.NewAccessController(cfg.Analysis.AuthorizedUsers, m, logger.With("component", "access"))
	if err != nil {
		return err
	}
	ucs := &biz.Usecases{
		Access:  access,
		Limiter: usecase.NewRateLimiter(cfg.Analysis.Cooldown),
		Chat:    usecase.NewChatUsecase(repos.Store, access, logger.With("component", "chat")),
	}
	ucs.Analysis = usecase.NewAnalysisUsecase(
		ucs.Access,
		ucs.Limiter,
		repos.Store,
		repos.Analyzer,
		usecase.NewPromptBuilder(prompts.ToPromptConfig(cfg.Analysis.MaxPromptChars)),
		cfg.AI.Timeout,
		m,
		logger.With("component", "analysis"),
	)

	// Initialize service and server layers
	cmdSvc := service.NewCommandService(ucs.Access, ucs.Chat, ucs.Analysis, repos.Notifier, m, logger.With("component", "command"))
	srv := server.NewFeishuServer(feishuClient, ucs.Chat, cmdSvc, repos.Members, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("feishu server: %w", err)
		}
		return nil
	})

	if cfg.API.Addr != "" {
		apiServer := api.NewServer(ucs.Chat, ucs.Access, m, reg, cfg.API.Addr, logger)
		g.Go(apiServer.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return apiServer.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})

	logger.Info("chat analyst started",
		slog.String("provider", repos.Analyzer.Name()),
		slog.Int("buffer_capacity", cfg.Analysis.BufferCapacity),
		slog.Duration("cooldown", cfg.Analysis.Cooldown),
		slog.String("main_admin", ucs.Access.MainAdmin()),
	)

	err = g.Wait()
	logger.Info("chat analyst stopped")
	return err
}
