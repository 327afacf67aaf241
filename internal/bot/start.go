package bot

import (
	"fmt"
	"regexp"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/telegram/middleware"
	"github.com/stixly/stickerbot/internal/quota"
)

var packNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{3,50}$`)

func (h *Handlers) handleStart(c tele.Context) error {
	return c.Send(strings.Join([]string{
		"Hi! I create sticker packs.",
		"",
		"/generate — create a sticker from a description",
		"/newpack — start a new sticker pack",
		"/quota — show your remaining generations",
		"/buy — buy premium with Telegram Stars",
		"/cancel — abort the current flow",
	}, "\n"))
}

func (h *Handlers) handleQuota(c tele.Context) error {
	plan, limits, dailyUsed, recentUsed := h.quota.Usage(c.Sender().ID)

	label := "Free"
	if plan == quota.PlanPremium {
		label = "Premium"
	}
	return c.Send(fmt.Sprintf(
		"Plan: %s\nToday: %d of %d generations used\nLast %d minutes: %d of %d",
		label,
		dailyUsed, limits.DailyLimit,
		int(limits.WindowPeriod.Minutes()), recentUsed, limits.WindowLimit,
	))
}

func (h *Handlers) handleNewPack(c tele.Context) error {
	h.sessions.SetStep(c.Sender().ID, stepAwaitPackName)
	return c.Send("Pick a short name for your pack (letters, digits, underscores).")
}

// handlePackName validates the proposed name and checks the gallery for a
// clash. An unreachable gallery degrades to a warning, not a failure.
func (h *Handlers) handlePackName(c tele.Context) error {
	userID := c.Sender().ID
	name := strings.TrimSpace(c.Text())

	if !packNameRe.MatchString(name) {
		return c.Send("That name won't work: 4-50 characters, letters, digits and underscores, starting with a letter.")
	}

	exists, _, known := h.gallery.StickerSetExists(middleware.ContextFrom(c), name)
	if known && exists {
		return c.Send("A pack with that name already exists in the gallery. Pick another one.")
	}

	h.sessions.Put(userID, "pack_name", name)
	h.sessions.SetStep(userID, stepAwaitPrompt)

	if !known {
		return c.Send(fmt.Sprintf(
			"Could not verify name availability right now, continuing with %q.\nNow describe the first sticker.", name))
	}
	return c.Send(fmt.Sprintf("%q is free. Now describe the first sticker.", name))
}
