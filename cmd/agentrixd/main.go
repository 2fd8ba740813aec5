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

	"golang.org/x/sync/errgroup"

	"Agentrix-Chat/internal/api"
	"Agentrix-Chat/internal/config"
	"Agentrix-Chat/internal/conversation"
	"Agentrix-Chat/internal/intent"
	"Agentrix-Chat/internal/issuance"
	"Agentrix-Chat/internal/observability/metrics"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/internal/wizard/definitions"
	"Agentrix-Chat/pkg/logger"
)

// main 是 Agentrix 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Error("agentrixd 运行失败", slog.Any("error", err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	log := logger.Named("agentrixd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}

	rules := intent.DefaultRules()
	if cfg.Intents.RulesPath != "" {
		if rules, err = intent.LoadRules(cfg.Intents.RulesPath); err != nil {
			return err
		}
	}
	classifier := intent.NewClassifier(rules)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Namespace)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	executor, searcher, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	chains, err := buildChains(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chains.registry.Close()

	wizards, err := definitions.Catalog(
		definitions.WithChains(chains.registry.Chains()...),
		definitions.WithDefaultChain(chains.registry.DefaultChain()),
	)
	if err != nil {
		return err
	}

	chainExecutor, err := buildChainExecutor(cfg.Web3, chains)
	if err != nil {
		return err
	}

	store, err := buildTaskStore(cfg, db)
	if err != nil {
		return err
	}
	queue, err := buildTaskQueue(ctx, cfg.Submission)
	if err != nil {
		return err
	}
	pollInterval := time.Duration(cfg.Submission.PollIntervalMillis) * time.Millisecond
	taskService := task.NewService(store, queue, cfg.Submission.MaxRetries, task.WithPollInterval(pollInterval))
	defer func() {
		if err := taskService.Close(); err != nil {
			log.Warn("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	processorOpts := []task.ProcessorOption{
		task.WithWorkerCount(cfg.Submission.Workers),
		task.WithAlertDispatcher(buildAlerts(cfg.Submission)),
	}
	if collector != nil {
		processorOpts = append(processorOpts, task.WithObserver(collector))
	}
	processor := task.NewProcessor(chainExecutor, store, queue, queue, processorOpts...)

	submitter, err := issuance.NewTaskSubmitter(taskService, issuance.WithWaitInterval(pollInterval))
	if err != nil {
		return err
	}

	archive, err := buildArchive(cfg, db)
	if err != nil {
		return err
	}
	routerOpts := []conversation.Option{
		conversation.WithExecutor(executor),
		conversation.WithSearcher(searcher),
	}
	apiOpts := []api.Option{api.WithSubmissions(taskService), api.WithMetrics(collector)}
	if archive != nil {
		defer archive.Close()
		routerOpts = append(routerOpts, conversation.WithArchive(archive))
		apiOpts = append(apiOpts, api.WithHistory(archive))
	}
	if collector != nil {
		routerOpts = append(routerOpts, conversation.WithMetrics(collector))
	}
	router, err := conversation.NewRouter(classifier, wizards, submitter, routerOpts...)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, router, apiOpts...)

	log.Info("agentrixd 启动",
		slog.String("addr", cfg.Server.Address),
		slog.String("backend", cfg.Backend.Mode),
		slog.String("store", cfg.Submission.StoreDriver),
		slog.String("queue", cfg.Submission.QueueDriver),
		slog.String("archive", cfg.Archive.Driver),
		slog.Any("chains", chains.registry.Chains()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Start(gctx)
	})
	g.Go(func() error {
		return server.Start(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("agentrixd 已退出")
	return nil
}
