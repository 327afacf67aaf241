package quota

import (
	"sync"
	"time"

	"github.com/stixly/stickerbot/core/clock"
)

// limiter idle entries older than this are dropped during cleanup.
const limiterIdleAfter = time.Hour

// Limiter guards per-user concurrency and cooldown. A user holds at most
// maxActive generation slots at a time and must wait out the plan cooldown
// between starts. Quota counting happens elsewhere; this only covers "not too
// many at once, not too often".
type Limiter struct {
	mu     sync.Mutex
	clk    clock.Clock
	active map[int64]int
	lastTS map[int64]time.Time
}

// NewLimiter constructs an empty limiter backed by clk.
func NewLimiter(clk clock.Clock) *Limiter {
	return &Limiter{
		clk:    clk,
		active: make(map[int64]int),
		lastTS: make(map[int64]time.Time),
	}
}

// TryStart reserves a generation slot. It fails when the user already holds
// maxActive slots (retryAfter 0) or the cooldown since the last start has not
// elapsed (retryAfter > 0). maxActive below 1 means a single slot.
func (l *Limiter) TryStart(userID int64, maxActive int, cooldown time.Duration) (bool, time.Duration) {
	if maxActive < 1 {
		maxActive = 1
	}
	now := l.clk.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[userID] >= maxActive {
		return false, 0
	}

	if last, ok := l.lastTS[userID]; ok && cooldown > 0 {
		if elapsed := now.Sub(last); elapsed < cooldown {
			return false, cooldown - elapsed
		}
	}

	l.active[userID]++
	l.lastTS[userID] = now
	return true, 0
}

// Finish releases one of the user's slots. Safe to call when none is held.
func (l *Limiter) Finish(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[userID] > 0 {
		l.active[userID]--
	}
}

// Active reports whether the user currently holds any slot.
func (l *Limiter) Active(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[userID] > 0
}

// Cleanup drops bookkeeping for users idle longer than an hour. Called
// opportunistically by the manager; bounded work under the lock.
func (l *Limiter) Cleanup() {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, count := range l.active {
		if count > 0 {
			continue
		}
		if now.Sub(l.lastTS[userID]) > limiterIdleAfter {
			delete(l.active, userID)
			delete(l.lastTS, userID)
		}
	}
}
