// ABOUTME: TTL-bounded seen-set for deduplicating webhook IDs
// ABOUTME: Prunes expired entries on insert, no background goroutine

package recorder

import (
	"sync"
	"time"
)

type seenKey struct {
	id   string
	when time.Time
}

// seenSet remembers webhook IDs for a TTL window so replayed frames are
// not recorded twice. Insertion order doubles as expiry order, so pruning
// walks the front of the queue only.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]time.Time
	queue []seenKey
	ttl   time.Duration
	max   int
	now   func() time.Time
}

func newSeenSet(ttl time.Duration, max int) *seenSet {
	return &seenSet{
		ids: make(map[string]time.Time),
		ttl: ttl,
		max: max,
		now: time.Now,
	}
}

// checkAndMark reports whether the ID was already seen inside the TTL
// window, marking it seen either way. Atomic so concurrent frames with
// the same ID cannot both pass.
func (s *seenSet) checkAndMark(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if stamped, ok := s.ids[id]; ok && now.Sub(stamped) < s.ttl {
		return true
	}

	if len(s.ids) >= s.max {
		s.evictLocked()
	}
	s.ids[id] = now
	s.queue = append(s.queue, seenKey{id: id, when: now})
	return false
}

// pruneLocked drops queue entries past the TTL. A queue entry whose
// timestamp no longer matches the map was re-marked later and is skipped.
func (s *seenSet) pruneLocked(now time.Time) {
	for len(s.queue) > 0 {
		head := s.queue[0]
		if now.Sub(head.when) < s.ttl {
			break
		}
		s.queue = s.queue[1:]
		if stamped, ok := s.ids[head.id]; ok && stamped.Equal(head.when) {
			delete(s.ids, head.id)
		}
	}
}

// evictLocked removes the oldest live entry to make room.
func (s *seenSet) evictLocked() {
	for len(s.queue) > 0 {
		head := s.queue[0]
		s.queue = s.queue[1:]
		if stamped, ok := s.ids[head.id]; ok && stamped.Equal(head.when) {
			delete(s.ids, head.id)
			return
		}
	}
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
