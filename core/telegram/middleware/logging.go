package middleware

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/logger"
)

const ctxKey = "logger_ctx"

// StoreContext attaches a context.Context to the telebot context for
// downstream handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// ContextFrom returns the context stored by Logging, or a fresh background
// context when the middleware did not run.
func ContextFrom(c tele.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(ctxKey).(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

// Logging assigns a correlation id per update, stores an enriched context,
// and logs one line per handled update with status and duration.
func Logging(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		userID, chatID := int64(0), int64(0)
		if user := c.Sender(); user != nil {
			userID = user.ID
		}
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}

		rid := logger.BuildRID(upd.ID, chatID, userID)
		ctx := logger.WithRID(context.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.TG)
		StoreContext(c, ctx)

		start := time.Now()
		err := next(c)

		logger.TG.Info("update handled",
			slog.String("event", "tg.update"),
			slog.String("rid", rid),
			slog.Int("update_id", upd.ID),
			slog.Int64("user_id", userID),
			slog.Int64("chat_id", chatID),
			slog.String("status", logger.Status(err)),
			slog.Duration("took", logger.Took(start)),
		)
		return err
	}
}
