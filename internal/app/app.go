// Package app assembles the bot's components from configuration and runs
// them under a shared lifecycle.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/config"
	"github.com/stixly/stickerbot/core/logger"
	"github.com/stixly/stickerbot/core/telegram"
	"github.com/stixly/stickerbot/internal/bot"
	"github.com/stixly/stickerbot/internal/gallery"
	"github.com/stixly/stickerbot/internal/genapi"
	"github.com/stixly/stickerbot/internal/payments"
	"github.com/stixly/stickerbot/internal/quota"
	"github.com/stixly/stickerbot/internal/webhook"
)

// quotaCleanupInterval bounds how long idle limiter entries linger.
const quotaCleanupInterval = 30 * time.Minute

// App holds the wired components for one bot process.
type App struct {
	cfg      *config.Config
	quota    *quota.Manager
	cache    *gallery.Cache
	notifier *webhook.Notifier
	handlers *bot.Handlers
}

// Build constructs every store and client from cfg. Nothing is started yet;
// Run owns the lifecycle.
func Build(cfg *config.Config) *App {
	clk := clock.System()

	resolver := quota.NewResolver(cfg.Plans.PremiumUserIDs)
	quotaManager := quota.NewManager(clk, resolver, map[quota.Plan]quota.PlanLimits{
		quota.PlanFree:    planLimits(cfg.Plans.Free),
		quota.PlanPremium: planLimits(cfg.Plans.Premium),
	})

	cache := gallery.NewCache(clk,
		time.Duration(cfg.Gallery.CacheTTLHours)*time.Hour,
		cfg.Gallery.CacheMaxSize,
	)
	galleryClient := gallery.NewClient(cfg.Gallery.BaseURL, cfg.Gallery.ServiceToken, cache, nil)

	genClient := genapi.NewClient(genapi.Options{
		BaseURL:      cfg.GenAPI.BaseURL,
		APIKey:       cfg.GenAPI.APIKey,
		PollInterval: time.Duration(cfg.GenAPI.PollIntervalSeconds) * time.Second,
		PollBudget:   time.Duration(cfg.GenAPI.PollBudgetSeconds) * time.Second,
	})

	invoices := payments.NewInvoiceStore(clk,
		time.Duration(cfg.Payments.InvoiceTTLHours)*time.Hour)
	idempotency := payments.NewIdempotencyStore(clk,
		time.Duration(cfg.Payments.IdempotencyRetentionD)*24*time.Hour)

	notifier := webhook.NewNotifier(webhook.Options{
		Secret:      cfg.Payments.SharedSecret,
		MaxAttempts: cfg.Notifier.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Notifier.BaseBackoffSeconds) * time.Second,
		Timeout:     time.Duration(cfg.Notifier.TimeoutSeconds) * time.Second,
	})

	handlers := bot.New(cfg, quotaManager, galleryClient, genClient, invoices, idempotency, notifier)

	return &App{
		cfg:      cfg,
		quota:    quotaManager,
		cache:    cache,
		notifier: notifier,
		handlers: handlers,
	}
}

// Run serves Telegram updates until ctx is done, then drains the webhook
// queue and reports any jobs that never delivered.
func (a *App) Run(ctx context.Context) error {
	return telegram.Run(ctx, telegram.RunOptions{
		Config:      a.cfg,
		Middlewares: a.handlers.Middlewares(),
		Routes:      a.handlers.Routes(),
		Tasks: []telegram.Task{
			{Name: "webhook-notifier", Run: a.notifier.Run},
			{Name: "cache-sweeper", Run: func(ctx context.Context) {
				a.cache.RunSweeper(ctx,
					time.Duration(a.cfg.Gallery.SweepIntervalHours)*time.Hour)
			}},
			{Name: "quota-cleanup", Run: a.runQuotaCleanup},
		},
		OnStop: a.stop,
	})
}

func (a *App) runQuotaCleanup(ctx context.Context) {
	ticker := time.NewTicker(quotaCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.quota.Cleanup()
		}
	}
}

func (a *App) stop(_ context.Context) {
	a.notifier.Wait()

	dead := a.notifier.DeadJobs()
	if len(dead) == 0 {
		logger.App.Info("shutdown complete", slog.String("event", "app.stop"))
		return
	}
	for _, job := range dead {
		logger.App.Warn("undelivered webhook at shutdown",
			slog.String("event", "app.dead_job"),
			slog.String("job_id", job.ID),
			slog.String("target", job.TargetURL),
			slog.Int("attempts", job.Attempts),
			slog.String("err", job.LastError),
		)
	}
}

func planLimits(p config.PlanConfig) quota.PlanLimits {
	return quota.PlanLimits{
		DailyLimit:   p.DailyLimit,
		WindowLimit:  p.WindowLimit,
		WindowPeriod: p.WindowPeriod(),
		Cooldown:     p.Cooldown(),
		MaxActive:    p.MaxActive,
	}
}
