package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/logger"
	"github.com/stixly/stickerbot/core/telegram/middleware"
	"github.com/stixly/stickerbot/internal/genapi"
	"github.com/stixly/stickerbot/internal/quota"
)

const maxPromptLen = 500

// handleGenerate starts a generation: inline prompt via "/generate cat in a
// hat", or a conversation step asking for one.
func (h *Handlers) handleGenerate(c tele.Context) error {
	prompt := strings.TrimSpace(strings.Join(c.Args(), " "))
	if prompt == "" {
		h.sessions.SetStep(c.Sender().ID, stepAwaitPrompt)
		return c.Send("What should the sticker look like? Describe it in one message.")
	}
	return h.runGeneration(c, prompt)
}

// runGeneration passes the admission gates, calls the generation API, and
// replies with the rendered image. The reserved slot is always released.
func (h *Handlers) runGeneration(c tele.Context, prompt string) error {
	userID := c.Sender().ID

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return c.Send("The description is empty. Try /generate again.")
	}
	if len(prompt) > maxPromptLen {
		return c.Send(fmt.Sprintf("That description is too long (max %d characters).", maxPromptLen))
	}

	decision := h.quota.TryConsume(userID)
	if !decision.Allowed {
		return h.replyDenied(c, decision)
	}
	defer h.quota.Finish(userID)

	if err := c.Notify(tele.UploadingPhoto); err != nil {
		logger.TG.Debug("notify failed", slog.String("err", err.Error()))
	}

	ctx := middleware.ContextFrom(c)
	start := time.Now()
	imageURL, err := h.gen.Generate(ctx, prompt)
	if err != nil {
		logger.TG.Warn("generation failed",
			slog.String("event", "tg.generate"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
			slog.Duration("took", logger.Took(start)),
		)
		switch {
		case errors.Is(err, genapi.ErrNotConfigured):
			return c.Send("Image generation is not available right now.")
		case errors.Is(err, genapi.ErrPollBudgetExceeded):
			return c.Send("Generation is taking too long; please try again.")
		default:
			return c.Send("Generation failed. Please try again.")
		}
	}

	logger.TG.Info("generation done",
		slog.String("event", "tg.generate"),
		slog.Int64("user_id", userID),
		slog.String("plan", string(decision.Plan)),
		slog.Int("daily_used", decision.DailyUsed),
		slog.Duration("took", logger.Took(start)),
	)
	return c.Send(&tele.Photo{File: tele.FromURL(imageURL), Caption: prompt})
}

// replyDenied explains the denial. Free users who hit the daily ceiling get
// the upgrade keyboard.
func (h *Handlers) replyDenied(c tele.Context, d quota.Decision) error {
	switch d.Reason {
	case quota.DenyBusy:
		return c.Send("A generation is already running. Wait for it to finish.")
	case quota.DenyCooldown:
		return c.Send(fmt.Sprintf("Please wait %ds before the next generation.", ceilSeconds(d.RetryAfter)))
	case quota.DenyRateLimited:
		return c.Send(fmt.Sprintf("Too many requests. Try again in %ds.", ceilSeconds(d.RetryAfter)))
	case quota.DenyDailyLimit:
		if d.Plan == quota.PlanFree {
			return c.Send(
				"Daily free limit reached. Upgrade to Premium for more generations.",
				upgradeKeyboard(),
			)
		}
		return c.Send("Premium daily limit reached. Try again tomorrow.")
	default:
		return c.Send("Request denied.")
	}
}

func upgradeKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	upgrade := markup.Data("⭐ Upgrade to Premium", "upgrade")
	markup.Inline(markup.Row(upgrade))
	return markup
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
