package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/logger"
)

// CooldownOptions configure the per-user message cooldown middleware.
type CooldownOptions struct {
	// Interval is the minimum spacing between handled updates per user.
	Interval time.Duration
	// OnLimited runs instead of the handler when the user is throttled.
	OnLimited tele.HandlerFunc
}

// Cooldown enforces a minimum interval between updates from the same user.
// This is flood protection for the chat surface; generation quotas are
// enforced separately by the admission layer.
func Cooldown(opts CooldownOptions) tele.MiddlewareFunc {
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}

			now := time.Now()
			mu.Lock()
			last, seen := lastSeen[user.ID]
			if seen && now.Sub(last) < opts.Interval {
				mu.Unlock()
				logger.TG.Warn("update throttled",
					slog.String("event", "tg.cooldown"),
					slog.Int64("user_id", user.ID),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[user.ID] = now
			mu.Unlock()

			return next(c)
		}
	}
}
