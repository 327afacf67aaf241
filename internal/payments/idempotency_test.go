package payments

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stixly/stickerbot/core/clock"
)

func TestCheckAndMarkFirstThenDuplicate(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewIdempotencyStore(clk, 7*24*time.Hour)

	assert.False(t, s.CheckAndMark("charge-42"), "first call is not a duplicate")
	assert.True(t, s.CheckAndMark("charge-42"))

	clk.Advance(6 * 24 * time.Hour)
	assert.True(t, s.CheckAndMark("charge-42"), "still within retention")
}

func TestCheckAndMarkDuplicateDoesNotExtendRetention(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewIdempotencyStore(clk, 24*time.Hour)

	require.False(t, s.CheckAndMark("charge-1"))
	clk.Advance(23 * time.Hour)
	require.True(t, s.CheckAndMark("charge-1"))

	// If the duplicate had refreshed the timestamp, the entry would survive
	// past the original retention horizon.
	clk.Advance(2 * time.Hour)
	assert.False(t, s.Seen("charge-1"))
}

func TestCheckAndMarkExpiresAfterRetention(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewIdempotencyStore(clk, 7*24*time.Hour)

	require.False(t, s.CheckAndMark("charge-42"))
	clk.Advance(8 * 24 * time.Hour)
	assert.False(t, s.CheckAndMark("charge-42"), "expired charge is processed again")
}

func TestCheckAndMarkConcurrentSingleWinner(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewIdempotencyStore(clk, time.Hour)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !s.CheckAndMark("charge-7") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh, "exactly one delivery may win the check-and-set")
}

func TestInvoiceLifecycle(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewInvoiceStore(clk, 24*time.Hour)

	inv := s.Create(7, 100, "XTR", `{"package_id":"basic_10"}`)
	require.NotEmpty(t, inv.ID)
	assert.Equal(t, InvoiceCreated, inv.Status)

	got, err := s.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, 100, got.AmountStars)

	require.NoError(t, s.UpdateStatus(inv.ID, InvoicePaid))
	got, err = s.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, got.Status)
}

func TestInvoiceExpires(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewInvoiceStore(clk, 24*time.Hour)

	inv := s.Create(7, 100, "XTR", "")
	clk.Advance(25 * time.Hour)

	_, err := s.Get(inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestInvoiceUpdateMissing(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewInvoiceStore(clk, time.Hour)

	err := s.UpdateStatus("nope", InvoicePaid)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}
