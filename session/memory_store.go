package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store]. It enforces the same admission rules as
// [RedisStore] under a single mutex and is intended for tests and single-process tools;
// it provides no coordination across processes.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]map[string]*Session
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]map[string]*Session)}
}

// Admit implements [Store].
func (s *MemoryStore) Admit(ctx context.Context, a Admission) (Session, AdmitOutcome, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	devices := s.users[a.UserID]
	if devices == nil {
		devices = make(map[string]*Session)
		s.users[a.UserID] = devices
	}

	active := 0
	for deviceID, sess := range devices {
		if !sess.IsActive {
			continue
		}
		if deviceID != a.DeviceID && sess.idle(a.Now, a.IdleTimeout) {
			sess.IsActive = false
			continue
		}
		active++
	}

	current, exists := devices[a.DeviceID]
	outcome := AdmitRefreshed
	switch {
	case exists && current.IsActive:
	case active >= a.MaxDevices:
		return Session{}, 0, ErrDeviceLimitExceeded
	case exists:
		outcome = AdmitReactivated
	default:
		outcome = AdmitCreated
		current = &Session{
			SessionID: a.SessionID,
			UserID:    a.UserID,
			DeviceID:  a.DeviceID,
			CreatedAt: a.Now,
		}
		devices[a.DeviceID] = current
	}

	current.IsActive = true
	current.PlanType = a.PlanType
	current.LastActivity = a.Now
	return *current, outcome, nil
}

// ActiveSessions implements [Store].
func (s *MemoryStore) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	return s.list(ctx, userID, true)
}

// Sessions implements [Store].
func (s *MemoryStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return s.list(ctx, userID, false)
}

func (s *MemoryStore) list(ctx context.Context, userID string, activeOnly bool) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.users[userID]))
	for _, sess := range s.users[userID] {
		if activeOnly && !sess.IsActive {
			continue
		}
		out = append(out, *sess)
	}
	return out, nil
}

// Deactivate implements [Store].
func (s *MemoryStore) Deactivate(ctx context.Context, userID, deviceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.users[userID][deviceID]
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	return true, nil
}

// DeactivateAll implements [Store].
func (s *MemoryStore) DeactivateAll(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.users[userID] {
		if sess.IsActive {
			sess.IsActive = false
			n++
		}
	}
	return n, nil
}

// Touch implements [Store].
func (s *MemoryStore) Touch(ctx context.Context, userID, deviceID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.users[userID][deviceID]
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.LastActivity = now
	return true, nil
}
