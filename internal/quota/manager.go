package quota

import (
	"log/slog"
	"time"

	"github.com/stixly/stickerbot/core/clock"
	"github.com/stixly/stickerbot/core/logger"
)

// DenyReason classifies why admission was refused.
type DenyReason string

const (
	// DenyBusy means a generation is already running for the user.
	DenyBusy DenyReason = "busy"
	// DenyCooldown means the per-plan cooldown has not elapsed.
	DenyCooldown DenyReason = "cooldown"
	// DenyRateLimited means the rolling window limit was hit.
	DenyRateLimited DenyReason = "rate_limited"
	// DenyDailyLimit means the calendar-day limit was hit.
	DenyDailyLimit DenyReason = "daily_limit"
)

// Decision is the outcome of a single admission attempt.
type Decision struct {
	Allowed    bool
	Reason     DenyReason
	RetryAfter time.Duration
	Plan       Plan
	DailyUsed  int
}

// Manager composes the limiter and both counters into one admission decision
// per user. On an allowed decision the caller owns a generation slot and must
// call Finish once the work completes or fails.
type Manager struct {
	limiter  *Limiter
	daily    *DailyQuotaStore
	window   *RollingWindowStore
	resolver *Resolver
	limits   map[Plan]PlanLimits
}

// NewManager wires the stores together. All stores must share the same clock.
func NewManager(clk clock.Clock, resolver *Resolver, limits map[Plan]PlanLimits) *Manager {
	return &Manager{
		limiter:  NewLimiter(clk),
		daily:    NewDailyQuotaStore(clk),
		window:   NewRollingWindowStore(clk),
		resolver: resolver,
		limits:   limits,
	}
}

// TryConsume runs the admission gates in order: concurrency/cooldown, rolling
// window, daily quota. A slot reserved by the limiter is rolled back when a
// later gate denies, so a denied user is not left "busy". A denied attempt
// mutates neither the window log nor the daily counter; a window entry
// admitted before a daily denial stays recorded.
func (m *Manager) TryConsume(userID int64) Decision {
	plan := m.resolver.Plan(userID)
	limits := m.limits[plan]

	ok, retryAfter := m.limiter.TryStart(userID, limits.MaxActive, limits.Cooldown)
	if !ok {
		reason := DenyBusy
		if retryAfter > 0 {
			reason = DenyCooldown
		}
		m.logDenied(userID, plan, reason, retryAfter)
		return Decision{Reason: reason, RetryAfter: retryAfter, Plan: plan}
	}

	if limits.WindowLimit > 0 {
		ok, retryAfter = m.window.TryConsume(userID, limits.WindowLimit, limits.WindowPeriod)
		if !ok {
			m.limiter.Finish(userID)
			m.logDenied(userID, plan, DenyRateLimited, retryAfter)
			return Decision{Reason: DenyRateLimited, RetryAfter: retryAfter, Plan: plan}
		}
	}

	ok, count := m.daily.TryConsume(userID, limits.DailyLimit)
	if !ok {
		m.limiter.Finish(userID)
		m.logDenied(userID, plan, DenyDailyLimit, 0)
		return Decision{Reason: DenyDailyLimit, Plan: plan, DailyUsed: count}
	}

	return Decision{Allowed: true, Plan: plan, DailyUsed: count}
}

// Finish releases the generation slot reserved by an allowed TryConsume.
func (m *Manager) Finish(userID int64) {
	m.limiter.Finish(userID)
}

// Usage reports current consumption for a user, for the /quota command.
func (m *Manager) Usage(userID int64) (Plan, PlanLimits, int, int) {
	plan := m.resolver.Plan(userID)
	limits := m.limits[plan]
	return plan, limits, m.daily.Count(userID), m.window.CountRecent(userID, limits.WindowPeriod)
}

// Cleanup trims idle limiter entries. Intended to run on a periodic task.
func (m *Manager) Cleanup() {
	m.limiter.Cleanup()
}

func (m *Manager) logDenied(userID int64, plan Plan, reason DenyReason, retryAfter time.Duration) {
	logger.Quota.Warn("admission denied",
		slog.String("event", "quota.denied"),
		slog.Int64("user_id", userID),
		slog.String("plan", string(plan)),
		slog.String("reason", string(reason)),
		slog.Duration("retry_after", logger.RoundMS(retryAfter)),
	)
}
