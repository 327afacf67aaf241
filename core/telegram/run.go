package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/config"
	"github.com/stixly/stickerbot/core/logger"
)

// Middleware is a named global bot middleware registered via bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// Task is a background goroutine tied to the bot's lifetime. It must return
// when its context is cancelled.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// RunOptions controls Run.
type RunOptions struct {
	Config      *config.Config
	Middlewares []Middleware
	Routes      []Route
	Tasks       []Task

	OnStop func(ctx context.Context)
}

// Run builds the bot, registers middlewares, routes, and background tasks,
// and serves updates until ctx is done. Background tasks are cancelled before
// OnStop runs so shutdown hooks observe quiesced stores.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.UpdatesWebhook.Listen,
			Port:   cfg.UpdatesWebhook.Port,
			URL:    cfg.UpdatesWebhook.URL,
		},
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	logger.TG.Info("bot ready",
		slog.String("event", "tg.mode"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.Duration("duration", logger.Took(buildStart)),
	)

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}

	taskCtx, cancelTasks := context.WithCancel(ctx)
	for _, task := range opts.Tasks {
		if task.Run == nil {
			continue
		}
		logger.App.Info("background task started",
			slog.String("event", "task.start"),
			slog.String("task", task.Name),
		)
		go task.Run(taskCtx)
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	cancelTasks()
	if opts.OnStop != nil {
		opts.OnStop(context.Background())
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
