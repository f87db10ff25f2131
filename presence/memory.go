package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps presence state in process memory. It is the default
// backend for single-instance deployments; multi-instance deployments
// use the Redis store so every instance sees the same set.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]int64
	counts   map[int64]int
	lastSeen map[int64]time.Time

	// now returns the current time; overridden in tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]int64),
		counts:   make(map[int64]int),
		lastSeen: make(map[int64]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) AddSession(_ context.Context, sessionID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[sessionID]; ok {
		// Rebinding an existing session id: release the old user first.
		s.drop(prev)
	}
	s.sessions[sessionID] = userID
	s.counts[userID]++
	return nil
}

func (s *MemoryStore) RemoveSession(_ context.Context, sessionID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.sessions[sessionID]
	if !ok {
		return 0, false, nil
	}
	delete(s.sessions, sessionID)
	s.drop(userID)
	return userID, true, nil
}

// drop decrements a user's session count. Callers hold the lock.
func (s *MemoryStore) drop(userID int64) {
	if s.counts[userID] <= 1 {
		delete(s.counts, userID)
		return
	}
	s.counts[userID]--
}

func (s *MemoryStore) Touch(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen[userID] = s.now()
	return nil
}

// Online returns the union of users with a live session and users whose
// last heartbeat falls within maxAge. Stale heartbeat entries are
// pruned on the way through.
func (s *MemoryStore) Online(_ context.Context, maxAge time.Duration) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	seen := make(map[int64]bool, len(s.counts))
	out := make([]int64, 0, len(s.counts))
	for userID := range s.counts {
		seen[userID] = true
		out = append(out, userID)
	}
	for userID, at := range s.lastSeen {
		if at.Before(cutoff) {
			delete(s.lastSeen, userID)
			continue
		}
		if !seen[userID] {
			out = append(out, userID)
		}
	}
	return out, nil
}

// Clear empties the store. Called at shutdown so a restarted instance
// never reports ghosts.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]int64)
	s.counts = make(map[int64]int)
	s.lastSeen = make(map[int64]time.Time)
}
