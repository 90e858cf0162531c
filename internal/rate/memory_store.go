package rate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// sweepInterval spaces out full scans for expired windows.
const sweepInterval = time.Minute

type memoryWindow struct {
	stamps    []int64
	expiresAt int64
}

// MemoryStore is an in-process [Store] for tests and single-process tools.
type MemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*memoryWindow
	nextSweep int64
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memoryWindow)}
}

// Record implements [Store].
func (s *MemoryStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, _ string) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	s.mu.Lock()
	defer s.mu.Unlock()

	if nowMs >= s.nextSweep {
		s.sweep(nowMs)
		s.nextSweep = nowMs + sweepInterval.Milliseconds()
	}

	w := s.windows[key]
	if w == nil || (w.expiresAt > 0 && nowMs >= w.expiresAt) {
		w = &memoryWindow{}
		s.windows[key] = w
	}

	cut := sort.Search(len(w.stamps), func(i int) bool { return w.stamps[i] > nowMs-windowMs })
	w.stamps = w.stamps[cut:]
	count := len(w.stamps)

	at := sort.Search(len(w.stamps), func(i int) bool { return w.stamps[i] > nowMs })
	w.stamps = append(w.stamps, 0)
	copy(w.stamps[at+1:], w.stamps[at:])
	w.stamps[at] = nowMs
	w.expiresAt = nowMs + windowMs

	return Window{Count: count, Oldest: time.UnixMilli(w.stamps[0])}, nil
}

// sweep drops every window whose last entry has left it, so keys seen once do not
// stay resident.
func (s *MemoryStore) sweep(nowMs int64) {
	for key, w := range s.windows {
		if w.expiresAt > 0 && nowMs >= w.expiresAt {
			delete(s.windows, key)
		}
	}
}

// Len reports the number of recorded entries for key without pruning.
func (s *MemoryStore) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.windows[key]; w != nil {
		return len(w.stamps)
	}
	return 0
}
