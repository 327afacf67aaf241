package quota

import (
	"sync"
	"time"

	"github.com/stixly/stickerbot/core/clock"
)

// RollingWindowStore tracks per-user request timestamps over a sliding
// window. Only admitted attempts are recorded; a denied attempt leaves the
// log untouched so it cannot extend the user's own lockout.
type RollingWindowStore struct {
	mu    sync.Mutex
	clk   clock.Clock
	store map[int64][]time.Time
}

// NewRollingWindowStore constructs an empty store backed by clk.
func NewRollingWindowStore(clk clock.Clock) *RollingWindowStore {
	return &RollingWindowStore{
		clk:   clk,
		store: make(map[int64][]time.Time),
	}
}

// TryConsume reports whether the user stays within limit for the given period
// and records the attempt only when admitted. When denied, retryAfter tells
// how long until the oldest in-window entry ages out.
func (s *RollingWindowStore) TryConsume(userID int64, limit int, period time.Duration) (bool, time.Duration) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	timestamps := s.pruneLocked(userID, now, period)

	if len(timestamps) >= limit {
		retryAfter := period
		if len(timestamps) > 0 {
			retryAfter = timestamps[0].Add(period).Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return false, retryAfter
	}

	s.store[userID] = append(timestamps, now)
	return true, 0
}

// CountRecent reports how many attempts fall inside the window right now.
func (s *RollingWindowStore) CountRecent(userID int64, period time.Duration) int {
	now := s.clk.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pruneLocked(userID, now, period))
}

// pruneLocked drops entries strictly older than the window and returns the
// survivors. An entry aged exactly the window duration still counts.
// Timestamps are appended in order, so pruning only trims the front.
func (s *RollingWindowStore) pruneLocked(userID int64, now time.Time, period time.Duration) []time.Time {
	timestamps := s.store[userID]
	cutoff := now.Add(-period)

	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		timestamps = append(timestamps[:0], timestamps[i:]...)
		if len(timestamps) == 0 {
			delete(s.store, userID)
			return nil
		}
		s.store[userID] = timestamps
	}
	return timestamps
}
