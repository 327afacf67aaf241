package quota

import (
	"sync"
	"time"

	"github.com/stixly/stickerbot/core/clock"
)

// dailyRetention controls how long finished day counters are kept before the
// opportunistic purge removes them.
const dailyRetention = 48 * time.Hour

type dayKey struct {
	userID int64
	day    string
}

// DailyQuotaStore counts per-user requests per UTC calendar day. The
// check-and-increment is atomic: two concurrent calls for the same user can
// never both pass the limit.
type DailyQuotaStore struct {
	mu    sync.Mutex
	clk   clock.Clock
	store map[dayKey]int
}

// NewDailyQuotaStore constructs an empty store backed by clk.
func NewDailyQuotaStore(clk clock.Clock) *DailyQuotaStore {
	return &DailyQuotaStore{
		clk:   clk,
		store: make(map[dayKey]int),
	}
}

// DayKey formats t as a UTC calendar day key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// TryConsume increments the user's counter for the current day unless doing so
// would exceed limit. On denial the counter is left untouched. The returned
// count is the value after the call.
func (s *DailyQuotaStore) TryConsume(userID int64, limit int) (bool, int) {
	now := s.clk.Now()
	key := dayKey{userID: userID, day: DayKey(now)}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.store[key]
	if count >= limit {
		return false, count
	}
	s.store[key] = count + 1
	s.purgeOldLocked(now)
	return true, count + 1
}

// Count reports the user's usage for the current day without mutating it.
func (s *DailyQuotaStore) Count(userID int64) int {
	key := dayKey{userID: userID, day: DayKey(s.clk.Now())}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store[key]
}

// purgeOldLocked drops counters whose day rolled past the retention horizon.
// Day keys sort lexicographically, so a string compare against the cutoff day
// is enough.
func (s *DailyQuotaStore) purgeOldLocked(now time.Time) {
	cutoff := DayKey(now.Add(-dailyRetention))
	for key := range s.store {
		if key.day < cutoff {
			delete(s.store, key)
		}
	}
}
