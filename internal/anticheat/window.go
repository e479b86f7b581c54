package anticheat

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// WindowStore keeps a sliding window of admitted submission timestamps per participant.
// Implementations must be safe for concurrent use by submissions of the same participant.
type WindowStore interface {
	// Admit records at when fewer than limit timestamps lie within the window ending at at.
	// It returns whether the timestamp was admitted and how many were already in the window.
	Admit(participantID int64, at time.Time, limit int) (bool, int)
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
	dead   bool // evicted from the cache; a fresh window must be fetched
}

// MemoryWindowStore is an in-process WindowStore. Windows live in a go-cache
// keyed by participant and expire after a full window of inactivity; each
// window carries its own mutex so participants never contend with each other.
type MemoryWindowStore struct {
	size  time.Duration
	cache *cache.Cache
}

// NewMemoryWindowStore creates a store whose windows span size.
func NewMemoryWindowStore(size time.Duration) *MemoryWindowStore {
	s := &MemoryWindowStore{
		size:  size,
		cache: cache.New(size, 2*size),
	}
	s.cache.OnEvicted(s.evicted)
	return s
}

func (s *MemoryWindowStore) evicted(key string, v any) {
	w := v.(*window)
	w.mu.Lock()
	defer w.mu.Unlock()
	// The window may have been stored again by a concurrent Admit.
	if cur, ok := s.cache.Get(key); ok && cur == v {
		return
	}
	w.dead = true
}

func (s *MemoryWindowStore) get(key string) *window {
	if v, ok := s.cache.Get(key); ok {
		return v.(*window)
	}
	w := &window{}
	if err := s.cache.Add(key, w, s.size); err != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(*window)
		}
	}
	return w
}

// Admit implements WindowStore.
func (s *MemoryWindowStore) Admit(participantID int64, at time.Time, limit int) (bool, int) {
	key := strconv.FormatInt(participantID, 10)
	for {
		w := s.get(key)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		cutoff := at.Add(-s.size)
		kept := w.stamps[:0]
		for _, ts := range w.stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		w.stamps = kept

		seen := len(kept)
		admitted := seen < limit
		if admitted {
			w.stamps = append(w.stamps, at)
		}
		s.cache.Set(key, w, s.size)
		w.mu.Unlock()
		return admitted, seen
	}
}
