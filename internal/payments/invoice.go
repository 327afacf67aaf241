package payments

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/logger"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceCreated   InvoiceStatus = "created"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceConfirmed InvoiceStatus = "confirmed"
	InvoiceFailed    InvoiceStatus = "failed"
)

// ErrInvoiceNotFound is returned when an invoice is missing or expired.
var ErrInvoiceNotFound = errors.New("invoice not found")

// Invoice is one issued Telegram Stars invoice.
type Invoice struct {
	ID          string
	UserID      int64
	AmountStars int
	Currency    string
	Status      InvoiceStatus
	CreatedAt   time.Time
	// Payload is the opaque string handed to Telegram and echoed back on
	// payment; forwarded untouched to the backend webhook.
	Payload string
}

// InvoiceStore keeps issued invoices for a TTL. Invoices only matter for the
// duration of a checkout, so expiry simply forgets them.
type InvoiceStore struct {
	mu    sync.Mutex
	clk   clock.Clock
	ttl   time.Duration
	store map[string]*Invoice
}

// NewInvoiceStore constructs an empty store.
func NewInvoiceStore(clk clock.Clock, ttl time.Duration) *InvoiceStore {
	return &InvoiceStore{
		clk:   clk,
		ttl:   ttl,
		store: make(map[string]*Invoice),
	}
}

// Create issues a new invoice with a generated id.
func (s *InvoiceStore) Create(userID int64, amountStars int, currency, payload string) *Invoice {
	now := s.clk.Now()
	inv := &Invoice{
		ID:          uuid.NewString(),
		UserID:      userID,
		AmountStars: amountStars,
		Currency:    currency,
		Status:      InvoiceCreated,
		CreatedAt:   now,
		Payload:     payload,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(now)
	s.store[inv.ID] = inv

	logger.Pay.Info("invoice created",
		slog.String("event", "pay.invoice_created"),
		slog.String("invoice_id", inv.ID),
		slog.Int64("user_id", userID),
		slog.Int("amount_stars", amountStars),
		slog.String("currency", currency),
	)
	return inv
}

// Get returns a copy of the invoice, or ErrInvoiceNotFound when it is missing
// or expired.
func (s *InvoiceStore) Get(invoiceID string) (Invoice, error) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.store[invoiceID]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	if now.Sub(inv.CreatedAt) > s.ttl {
		delete(s.store, invoiceID)
		return Invoice{}, ErrInvoiceNotFound
	}
	return *inv, nil
}

// UpdateStatus transitions the invoice to status.
func (s *InvoiceStore) UpdateStatus(invoiceID string, status InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.store[invoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	old := inv.Status
	inv.Status = status

	logger.Pay.Info("invoice status updated",
		slog.String("event", "pay.invoice_status"),
		slog.String("invoice_id", invoiceID),
		slog.String("from", string(old)),
		slog.String("to", string(status)),
	)
	return nil
}

// Len reports how many invoices are retained, for monitoring.
func (s *InvoiceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}

func (s *InvoiceStore) purgeLocked(now time.Time) {
	for id, inv := range s.store {
		if now.Sub(inv.CreatedAt) > s.ttl {
			delete(s.store, id)
		}
	}
}
