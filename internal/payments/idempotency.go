// Package payments holds the in-memory state for Telegram Stars payments:
// invoices issued to users and the charge ids already applied. Telegram may
// redeliver a successful-payment update, so every charge passes through the
// idempotency store before any side effect runs.
package payments

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/logger"
)

// IdempotencyStore remembers processed charge ids for a retention period.
type IdempotencyStore struct {
	mu        sync.Mutex
	clk       clock.Clock
	retention time.Duration
	processed map[string]time.Time
}

// NewIdempotencyStore constructs an empty store. Retention should exceed any
// plausible duplicate-delivery delay from Telegram.
func NewIdempotencyStore(clk clock.Clock, retention time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		clk:       clk,
		retention: retention,
		processed: make(map[string]time.Time),
	}
}

// CheckAndMark reports whether chargeID was already processed and, if not,
// records it. The check and the insert happen under one lock so concurrent
// deliveries of the same charge cannot both come back fresh. A duplicate call
// leaves the stored timestamp untouched.
func (s *IdempotencyStore) CheckAndMark(chargeID string) bool {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(now)

	if _, ok := s.processed[chargeID]; ok {
		logger.Pay.Info("duplicate charge ignored",
			slog.String("event", "pay.duplicate"),
			slog.String("charge_id", chargeID),
		)
		return true
	}

	s.processed[chargeID] = now
	return false
}

// Seen reports whether chargeID is currently recorded, without mutating.
func (s *IdempotencyStore) Seen(chargeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	processedAt, ok := s.processed[chargeID]
	if !ok {
		return false
	}
	return s.clk.Now().Sub(processedAt) <= s.retention
}

// Len reports how many charge ids are retained, for monitoring.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func (s *IdempotencyStore) purgeLocked(now time.Time) {
	for chargeID, processedAt := range s.processed {
		if now.Sub(processedAt) > s.retention {
			delete(s.processed, chargeID)
		}
	}
}
