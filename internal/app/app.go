package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"ReelRelay/internal/config"
	"ReelRelay/internal/domain"
	"ReelRelay/internal/infrastructure/apify"
	"ReelRelay/internal/infrastructure/download"
	"ReelRelay/internal/infrastructure/facebook"
	"ReelRelay/internal/infrastructure/llm"
	"ReelRelay/internal/infrastructure/scheduler"
	"ReelRelay/internal/infrastructure/storage"
	"ReelRelay/internal/infrastructure/telegram"
	"ReelRelay/internal/logging"
	"ReelRelay/internal/ports"
	"ReelRelay/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     zerolog.Logger
	repository *storage.SQLiteRepository
	publisher  *facebook.Client
	notifier   *telegram.Notifier
	pipeline   *usecase.Pipeline
}

// ValidationReport describes the remote identities behind the configured credentials.
type ValidationReport struct {
	PageID       string
	PageName     string
	TelegramBot  string
	TelegramChat string
}

// New opens the store and builds every adapter. The caller must Close the
// returned application.
func New(ctx context.Context, cfg config.Config, baseLogger zerolog.Logger) (*Application, error) {
	if err := ensureDir(cfg.Database.Path); err != nil {
		return nil, err
	}
	repo, err := storage.Open(ctx, cfg.Database.Path, logging.Component(baseLogger, "storage"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolverClient := &http.Client{Timeout: cfg.Download.ResolverTimeout}
	chain, err := download.NewChainFromRegistry(
		download.NewRegistry(resolverClient, cfg.Download.Endpoints),
		cfg.Download.Resolvers,
		download.ChainConfig{
			Dir:             cfg.Download.Dir,
			MinFileSize:     cfg.Download.MinFileSize,
			DownloadTimeout: cfg.Download.DownloadTimeout,
			Logger:          logging.Component(baseLogger, "download"),
		},
	)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("build acquisition chain: %w", err)
	}

	publisher := facebook.NewClient(facebook.Config{
		GraphURL:          cfg.Facebook.GraphURL,
		APIVersion:        cfg.Facebook.APIVersion,
		PageID:            cfg.Facebook.PageID,
		AccessToken:       cfg.Facebook.AccessToken,
		PublishMode:       cfg.Facebook.PublishMode,
		ChunkSize:         cfg.Facebook.ChunkSize,
		MaxAttempts:       cfg.Facebook.MaxAttempts,
		RetryBaseDelay:    cfg.Facebook.RetryBaseDelay,
		PollInterval:      cfg.Facebook.PollInterval,
		ProcessingTimeout: cfg.Facebook.ProcessingTimeout,
	}, nil, logging.Component(baseLogger, "facebook"))

	var (
		notifier  *telegram.Notifier
		notifyVia ports.Notifier
	)
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
		notifyVia = notifier
	}

	// an explicit zero in the config file disables pacing
	itemDelay := cfg.Scheduler.ItemDelay
	if itemDelay == 0 {
		itemDelay = -1
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     apify.NewTikTokSource(cfg.Discovery, logging.Component(baseLogger, "discovery")),
		Repository: repo,
		Acquirer:   chain,
		Generator:  llm.NewChatGPTGenerator(cfg.ChatGPT, logging.Component(baseLogger, "llm")),
		Publisher:  publisher,
		Notifier:   notifyVia,
		Logger:     logging.Component(baseLogger, "pipeline"),
		ItemDelay:  itemDelay,
	})

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		repository: repo,
		publisher:  publisher,
		notifier:   notifier,
		pipeline:   pipeline,
	}, nil
}

// RunOnce performs a single pipeline execution. count <= 0 falls back to
// the configured videos per run.
func (a *Application) RunOnce(ctx context.Context, count int) (domain.RunSummary, error) {
	if err := a.cfg.Validate(); err != nil {
		return domain.RunSummary{}, err
	}
	if count <= 0 {
		count = a.cfg.Scheduler.VideosPerRun
	}
	return a.pipeline.Run(ctx, count)
}

// Start runs the pipeline on the configured cron expression until ctx is done.
func (a *Application) Start(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Component(a.logger, "scheduler")
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), logger)
	if err != nil {
		return err
	}

	sched := usecase.NewScheduler(driver, a.pipeline, usecase.SchedulerOptions{
		Expression:   a.cfg.Scheduler.CronExpression,
		VideosPerRun: a.cfg.Scheduler.VideosPerRun,
		RunOnStart:   a.cfg.Scheduler.RunOnStart,
		Logger:       logger,
	})
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info().
		Str("cron", a.cfg.Scheduler.CronExpression).
		Str("every", scheduler.Describe(a.cfg.Scheduler.CronExpression)).
		Int("videos_per_run", a.cfg.Scheduler.VideosPerRun).
		Msg("scheduler started")

	<-ctx.Done()

	// the in-flight item finishes even though ctx is already cancelled
	if err := sched.Stop(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	logger.Info().Msg("scheduler stopped")
	return nil
}

// Stats returns the per-status counts of the store.
func (a *Application) Stats(ctx context.Context) (domain.Stats, error) {
	return a.repository.Stats(ctx)
}

// Recent returns the most recently uploaded records.
func (a *Application) Recent(ctx context.Context, limit int) ([]domain.Record, error) {
	return a.repository.Recent(ctx, limit)
}

// Validate checks the Facebook token and, when configured, the Telegram bot.
func (a *Application) Validate(ctx context.Context) (ValidationReport, error) {
	var report ValidationReport

	identity, err := a.publisher.ValidateToken(ctx)
	if err != nil {
		return report, fmt.Errorf("facebook: %w", err)
	}
	report.PageID, report.PageName = identity.ID, identity.Name

	if a.notifier != nil {
		info, err := a.notifier.Validate(ctx)
		if err != nil {
			return report, fmt.Errorf("telegram: %w", err)
		}
		report.TelegramBot, report.TelegramChat = info.Username, info.ChatTitle
	}
	return report, nil
}

// Close releases the store.
func (a *Application) Close() error {
	if a.repository == nil {
		return nil
	}
	return a.repository.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}
