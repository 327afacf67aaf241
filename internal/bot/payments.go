package bot

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/logger"
	"github.com/stixly/stickerbot/internal/payments"
	"github.com/stixly/stickerbot/internal/webhook"
)

const premiumPriceStars = 100

// invoicePayload is the opaque structure embedded in Telegram invoices so the
// payment update can be matched to a stored invoice.
type invoicePayload struct {
	InvoiceID string `json:"invoice_id"`
}

// handleBuy issues a Telegram Stars invoice for the premium package.
func (h *Handlers) handleBuy(c tele.Context) error {
	userID := c.Sender().ID

	stars := premiumPriceStars
	if args := c.Args(); len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 10000 {
			stars = n
		}
	}

	inv := h.invoices.Create(userID, stars, "XTR", "")
	payload, err := json.Marshal(invoicePayload{InvoiceID: inv.ID})
	if err != nil {
		return err
	}

	return c.Send(&tele.Invoice{
		Title:       "Stixly Premium",
		Description: "More daily generations and shorter cooldowns.",
		Payload:     string(payload),
		Currency:    "XTR",
		Prices:      []tele.Price{{Label: "Premium", Amount: stars}},
	})
}

// handleCheckout answers the pre-checkout query. Telegram cancels the payment
// unless it gets an answer within 10 seconds, so validation problems are
// logged and the payment approved anyway, matching how invoices were already
// validated at creation time.
func (h *Handlers) handleCheckout(c tele.Context) error {
	query := c.PreCheckoutQuery()
	if query == nil {
		return nil
	}
	userID := query.Sender.ID

	var payload invoicePayload
	if err := json.Unmarshal([]byte(query.Payload), &payload); err == nil && payload.InvoiceID != "" {
		inv, err := h.invoices.Get(payload.InvoiceID)
		switch {
		case err != nil:
			logger.Pay.Warn("pre-checkout for unknown invoice",
				slog.String("event", "pay.precheckout"),
				slog.String("invoice_id", payload.InvoiceID),
				slog.Int64("user_id", userID),
			)
		case inv.AmountStars != query.Total:
			logger.Pay.Warn("pre-checkout amount mismatch",
				slog.String("event", "pay.precheckout"),
				slog.String("invoice_id", inv.ID),
				slog.Int("expected", inv.AmountStars),
				slog.Int("got", query.Total),
			)
		case inv.UserID != userID:
			logger.Pay.Warn("pre-checkout user mismatch",
				slog.String("event", "pay.precheckout"),
				slog.String("invoice_id", inv.ID),
				slog.Int64("expected", inv.UserID),
				slog.Int64("got", userID),
			)
		}
	}

	return c.Accept()
}

// handlePayment processes a successful Stars payment exactly once. Telegram
// may redeliver the update; the idempotency store decides whether any side
// effect runs.
func (h *Handlers) handlePayment(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Payment == nil {
		return nil
	}
	payment := msg.Payment
	userID := c.Sender().ID

	if h.idempotency.CheckAndMark(payment.TelegramChargeID) {
		// Already applied; nothing to redo, nothing to resend.
		return nil
	}

	logger.Pay.Info("payment received",
		slog.String("event", "pay.succeeded"),
		slog.Int64("user_id", userID),
		slog.Int("amount_stars", payment.Total),
		slog.String("currency", payment.Currency),
		slog.String("charge_id", payment.TelegramChargeID),
	)

	var payload invoicePayload
	if err := json.Unmarshal([]byte(payment.Payload), &payload); err == nil && payload.InvoiceID != "" {
		if err := h.invoices.UpdateStatus(payload.InvoiceID, payments.InvoicePaid); err != nil {
			logger.Pay.Warn("paid invoice missing from store",
				slog.String("event", "pay.succeeded"),
				slog.String("invoice_id", payload.InvoiceID),
			)
		}
	}

	if target := h.cfg.Payments.BackendWebhookURL; target != "" {
		_, err := h.notifier.Enqueue(target, webhook.PaymentEvent{
			Event:            webhook.EventPaymentSucceeded,
			UserID:           userID,
			AmountStars:      payment.Total,
			Currency:         payment.Currency,
			TelegramChargeID: payment.TelegramChargeID,
			InvoicePayload:   payment.Payload,
			Timestamp:        time.Now().Unix(),
		})
		if err != nil {
			// The payment itself succeeded; delivery failure must not
			// surface to the user.
			logger.Pay.Error("webhook enqueue failed",
				slog.String("event", "pay.succeeded"),
				slog.String("charge_id", payment.TelegramChargeID),
				slog.String("err", err.Error()),
			)
		}
	}

	return c.Send("Payment received, thank you! Premium features are on their way. ⭐")
}
