// Package bot implements the Telegram-facing handlers: the sticker
// generation flow behind the admission layer, pack name checks against the
// gallery, and Telegram Stars payment processing.
package bot

import (
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/config"
	"github.com/stixly/stickerbot/core/telegram"
	"github.com/stixly/stickerbot/core/telegram/middleware"
	"github.com/stixly/stickerbot/core/telegram/state"
	"github.com/stixly/stickerbot/internal/gallery"
	"github.com/stixly/stickerbot/internal/genapi"
	"github.com/stixly/stickerbot/internal/payments"
	"github.com/stixly/stickerbot/internal/quota"
	"github.com/stixly/stickerbot/internal/webhook"
)

// Conversation steps of the pack creation and generation flows.
const (
	stepAwaitPackName state.Step = "await_pack_name"
	stepAwaitPrompt   state.Step = "await_prompt"
)

// Handlers carries the dependencies shared by all bot handlers.
type Handlers struct {
	cfg         *config.Config
	quota       *quota.Manager
	gallery     *gallery.Client
	gen         *genapi.Client
	invoices    *payments.InvoiceStore
	idempotency *payments.IdempotencyStore
	notifier    *webhook.Notifier
	sessions    *state.Manager
}

// New wires handler dependencies.
func New(
	cfg *config.Config,
	quotaManager *quota.Manager,
	galleryClient *gallery.Client,
	genClient *genapi.Client,
	invoices *payments.InvoiceStore,
	idempotency *payments.IdempotencyStore,
	notifier *webhook.Notifier,
) *Handlers {
	return &Handlers{
		cfg:         cfg,
		quota:       quotaManager,
		gallery:     galleryClient,
		gen:         genClient,
		invoices:    invoices,
		idempotency: idempotency,
		notifier:    notifier,
		sessions:    state.NewManager(),
	}
}

// Middlewares returns the global middleware chain in application order.
func (h *Handlers) Middlewares() []telegram.Middleware {
	return []telegram.Middleware{
		{Name: "recover", Use: middleware.Recover},
		{Name: "logging", Use: middleware.Logging},
		{Name: "cooldown", Use: middleware.Cooldown(middleware.CooldownOptions{
			Interval: 500 * time.Millisecond,
		})},
	}
}

// Routes returns every endpoint the bot serves.
func (h *Handlers) Routes() []telegram.Route {
	return []telegram.Route{
		{Endpoint: "/start", Handler: h.handleStart},
		{Endpoint: "/quota", Handler: h.handleQuota},
		{Endpoint: "/generate", Handler: h.handleGenerate},
		{Endpoint: "/newpack", Handler: h.handleNewPack},
		{Endpoint: "/cancel", Handler: h.handleCancel},
		{Endpoint: "/buy", Handler: h.handleBuy},
		{Endpoint: tele.OnText, Handler: h.handleText},
		{Endpoint: tele.OnCheckout, Handler: h.handleCheckout},
		{Endpoint: tele.OnPayment, Handler: h.handlePayment},
	}
}

// handleText dispatches free-form messages based on the conversation step.
func (h *Handlers) handleText(c tele.Context) error {
	userID := c.Sender().ID
	switch h.sessions.Step(userID) {
	case stepAwaitPackName:
		return h.handlePackName(c)
	case stepAwaitPrompt:
		h.sessions.Clear(userID)
		return h.runGeneration(c, c.Text())
	default:
		return c.Send("Use /generate to create a sticker or /newpack to start a pack.")
	}
}

func (h *Handlers) handleCancel(c tele.Context) error {
	h.sessions.Clear(c.Sender().ID)
	return c.Send("Cancelled.")
}
