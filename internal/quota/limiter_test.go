package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stixly/stickerbot/core/clock"
)

func TestLimiterSingleActiveSlot(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	l := NewLimiter(clk)

	ok, _ := l.TryStart(7, 1, 0)
	assert.True(t, ok)
	assert.True(t, l.Active(7))

	ok, retryAfter := l.TryStart(7, 1, 0)
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), retryAfter)

	l.Finish(7)
	ok, _ = l.TryStart(7, 1, 0)
	assert.True(t, ok)
}

func TestLimiterMultipleSlots(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	l := NewLimiter(clk)

	ok, _ := l.TryStart(7, 2, 0)
	assert.True(t, ok)
	ok, _ = l.TryStart(7, 2, 0)
	assert.True(t, ok)

	ok, retryAfter := l.TryStart(7, 2, 0)
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), retryAfter)

	l.Finish(7)
	ok, _ = l.TryStart(7, 2, 0)
	assert.True(t, ok)
}

func TestLimiterCooldown(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	l := NewLimiter(clk)

	cooldown := 30 * time.Second
	ok, _ := l.TryStart(7, 1, cooldown)
	assert.True(t, ok)
	l.Finish(7)

	clk.Advance(10 * time.Second)
	ok, retryAfter := l.TryStart(7, 1, cooldown)
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, retryAfter)

	clk.Advance(20 * time.Second)
	ok, _ = l.TryStart(7, 1, cooldown)
	assert.True(t, ok)
}

func TestLimiterCleanupKeepsActiveAndRecent(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	l := NewLimiter(clk)

	l.TryStart(1, 1, 0) // stays active
	l.TryStart(2, 1, 0)
	l.Finish(2) // idle, will age out

	clk.Advance(2 * time.Hour)
	l.Cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Contains(t, l.active, int64(1))
	assert.NotContains(t, l.active, int64(2))
}
