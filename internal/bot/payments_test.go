package bot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/config"
	"github.com/stixly/stickerbot/internal/payments"
	"github.com/stixly/stickerbot/internal/webhook"
)

// fakeContext implements just enough of tele.Context for handler tests. The
// embedded interface panics on anything a handler was not expected to touch.
type fakeContext struct {
	tele.Context

	sender *tele.User
	msg    *tele.Message
	pcq    *tele.PreCheckoutQuery
	args   []string

	sent     []interface{}
	accepted int
}

func (c *fakeContext) Sender() *tele.User { return c.sender }

func (c *fakeContext) Message() *tele.Message { return c.msg }

func (c *fakeContext) PreCheckoutQuery() *tele.PreCheckoutQuery { return c.pcq }

func (c *fakeContext) Args() []string { return c.args }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func (c *fakeContext) Accept(_ ...string) error {
	c.accepted++
	return nil
}

func newTestHandlers(t *testing.T, backendURL string) *Handlers {
	t.Helper()

	cfg := &config.Config{}
	cfg.Telegram.Token = "test-token"
	cfg.Payments.BackendWebhookURL = backendURL
	require.NoError(t, config.Normalize(cfg))

	clk := clock.System()
	invoices := payments.NewInvoiceStore(clk, 24*time.Hour)
	idempotency := payments.NewIdempotencyStore(clk, 7*24*time.Hour)
	notifier := webhook.NewNotifier(webhook.Options{Secret: "secret"})

	return New(cfg, nil, nil, nil, invoices, idempotency, notifier)
}

func TestBuyIssuesStarsInvoice(t *testing.T) {
	h := newTestHandlers(t, "")
	ctx := &fakeContext{sender: &tele.User{ID: 42}}

	require.NoError(t, h.handleBuy(ctx))
	require.Len(t, ctx.sent, 1)

	inv, ok := ctx.sent[0].(*tele.Invoice)
	require.True(t, ok, "expected a telegram invoice, got %T", ctx.sent[0])
	assert.Equal(t, "XTR", inv.Currency)
	require.Len(t, inv.Prices, 1)
	assert.Equal(t, premiumPriceStars, inv.Prices[0].Amount)

	var payload invoicePayload
	require.NoError(t, json.Unmarshal([]byte(inv.Payload), &payload))
	stored, err := h.invoices.Get(payload.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.UserID)
	assert.Equal(t, payments.InvoiceCreated, stored.Status)
}

func TestCheckoutAlwaysAnswered(t *testing.T) {
	h := newTestHandlers(t, "")

	inv := h.invoices.Create(42, premiumPriceStars, "XTR", "")
	payload, _ := json.Marshal(invoicePayload{InvoiceID: inv.ID})

	cases := []struct {
		name  string
		query *tele.PreCheckoutQuery
	}{
		{"valid", &tele.PreCheckoutQuery{
			Sender:   &tele.User{ID: 42},
			Payload:  string(payload),
			Currency: "XTR",
			Total:    premiumPriceStars,
		}},
		{"amount mismatch", &tele.PreCheckoutQuery{
			Sender:   &tele.User{ID: 42},
			Payload:  string(payload),
			Currency: "XTR",
			Total:    premiumPriceStars + 1,
		}},
		{"unknown invoice", &tele.PreCheckoutQuery{
			Sender:  &tele.User{ID: 42},
			Payload: `{"invoice_id":"missing"}`,
		}},
		{"garbage payload", &tele.PreCheckoutQuery{
			Sender:  &tele.User{ID: 42},
			Payload: "not json",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &fakeContext{sender: tc.query.Sender, pcq: tc.query}
			require.NoError(t, h.handleCheckout(ctx))
			assert.Equal(t, 1, ctx.accepted)
		})
	}
}

func TestPaymentEnqueuesOneWebhookJob(t *testing.T) {
	h := newTestHandlers(t, "https://backend.example.com/webhook")

	inv := h.invoices.Create(42, premiumPriceStars, "XTR", "")
	payload, _ := json.Marshal(invoicePayload{InvoiceID: inv.ID})

	paymentCtx := func() *fakeContext {
		return &fakeContext{
			sender: &tele.User{ID: 42},
			msg: &tele.Message{Payment: &tele.Payment{
				Currency:         "XTR",
				Total:            premiumPriceStars,
				Payload:          string(payload),
				TelegramChargeID: "charge-001",
			}},
		}
	}

	first := paymentCtx()
	require.NoError(t, h.handlePayment(first))
	require.Len(t, first.sent, 1, "first delivery thanks the user")
	assert.Equal(t, 1, h.notifier.QueueLen())

	stored, err := h.invoices.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.InvoicePaid, stored.Status)

	// Telegram redelivers the same update; nothing may happen twice.
	dup := paymentCtx()
	require.NoError(t, h.handlePayment(dup))
	assert.Empty(t, dup.sent, "duplicate is silent")
	assert.Equal(t, 1, h.notifier.QueueLen())
}

func TestPaymentWithoutBackendSkipsWebhook(t *testing.T) {
	h := newTestHandlers(t, "")

	ctx := &fakeContext{
		sender: &tele.User{ID: 7},
		msg: &tele.Message{Payment: &tele.Payment{
			Currency:         "XTR",
			Total:            50,
			Payload:          `{"invoice_id":"gone"}`,
			TelegramChargeID: "charge-002",
		}},
	}
	require.NoError(t, h.handlePayment(ctx))
	assert.Equal(t, 0, h.notifier.QueueLen())
	require.Len(t, ctx.sent, 1)
}
