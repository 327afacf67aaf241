package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stixly/stickerbot/core/clock"
)

func testLimits() map[Plan]PlanLimits {
	return map[Plan]PlanLimits{
		PlanFree: {
			DailyLimit:   3,
			WindowLimit:  2,
			WindowPeriod: 10 * time.Minute,
			Cooldown:     30 * time.Second,
			MaxActive:    1,
		},
		PlanPremium: {
			DailyLimit:   50,
			WindowLimit:  10,
			WindowPeriod: 10 * time.Minute,
			Cooldown:     5 * time.Second,
			MaxActive:    1,
		},
	}
}

func newTestManager(clk clock.Clock, premium ...int64) *Manager {
	return NewManager(clk, NewResolver(premium), testLimits())
}

func TestManagerAllowsAndReservesSlot(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(clk)

	d := m.TryConsume(7)
	require.True(t, d.Allowed)
	assert.Equal(t, PlanFree, d.Plan)
	assert.Equal(t, 1, d.DailyUsed)

	// Slot is held until Finish.
	d = m.TryConsume(7)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyBusy, d.Reason)

	m.Finish(7)
}

func TestManagerCooldownDenial(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(clk)

	require.True(t, m.TryConsume(7).Allowed)
	m.Finish(7)

	clk.Advance(5 * time.Second)
	d := m.TryConsume(7)
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyCooldown, d.Reason)
	assert.Equal(t, 25*time.Second, d.RetryAfter)
}

func TestManagerWindowDenialRollsBackSlot(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(clk)

	for i := 0; i < 2; i++ {
		d := m.TryConsume(7)
		require.True(t, d.Allowed)
		m.Finish(7)
		clk.Advance(time.Minute)
	}

	d := m.TryConsume(7)
	require.False(t, d.Allowed)
	assert.Equal(t, DenyRateLimited, d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// The limiter slot must have been released on denial, and the denied
	// attempt must not have entered the window log.
	assert.False(t, m.limiter.Active(7))
	assert.Equal(t, 2, m.window.CountRecent(7, 10*time.Minute))
}

func TestManagerDailyDenialLeavesCounterIntact(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(clk)

	// Burn the full daily budget, spacing attempts past window and cooldown.
	for i := 0; i < 3; i++ {
		d := m.TryConsume(7)
		require.True(t, d.Allowed, "attempt %d", i)
		m.Finish(7)
		clk.Advance(6 * time.Minute)
	}

	d := m.TryConsume(7)
	require.False(t, d.Allowed)
	assert.Equal(t, DenyDailyLimit, d.Reason)
	assert.Equal(t, 3, d.DailyUsed)
	assert.False(t, m.limiter.Active(7))

	// Counter did not move past the limit.
	assert.Equal(t, 3, m.daily.Count(7))
}

func TestManagerPremiumResolution(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(clk, 42)

	d := m.TryConsume(42)
	require.True(t, d.Allowed)
	assert.Equal(t, PlanPremium, d.Plan)
	m.Finish(42)

	plan, limits, daily, recent := m.Usage(42)
	assert.Equal(t, PlanPremium, plan)
	assert.Equal(t, 50, limits.DailyLimit)
	assert.Equal(t, 1, daily)
	assert.Equal(t, 1, recent)
}

func TestManagerUsersIndependent(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m := newTestManager(clk)

	require.True(t, m.TryConsume(1).Allowed)
	// User 1 holds a slot; user 2 is unaffected.
	require.True(t, m.TryConsume(2).Allowed)
}
