// Package quota implements admission control for generation requests. Each
// request passes three gates before work starts: a per-user concurrency and
// cooldown limiter, a rolling window counter, and a calendar-day counter.
// All state is in-memory and scoped to one process.
package quota

import "time"

// Plan identifies a service tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// PlanLimits declares the admission limits of one tier.
type PlanLimits struct {
	DailyLimit   int
	WindowLimit  int
	WindowPeriod time.Duration
	Cooldown     time.Duration
	MaxActive    int
}

// Resolver maps a user to a plan based on a premium whitelist.
type Resolver struct {
	premium map[int64]struct{}
}

// NewResolver builds a resolver from premium user ids.
func NewResolver(premiumUserIDs []int64) *Resolver {
	premium := make(map[int64]struct{}, len(premiumUserIDs))
	for _, id := range premiumUserIDs {
		premium[id] = struct{}{}
	}
	return &Resolver{premium: premium}
}

// Plan returns the tier of a user.
func (r *Resolver) Plan(userID int64) Plan {
	if _, ok := r.premium[userID]; ok {
		return PlanPremium
	}
	return PlanFree
}
