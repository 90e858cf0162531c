package limiters

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrMissingIdentifier is returned when the credential identifier is empty.
	ErrMissingIdentifier = errors.New("lockout: missing identifier")
)

// LockoutConfig holds configuration for the login lockout limiter.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// Retention is how long an idle failure counter survives before the backend drops it.
	// The effective TTL is never shorter than Duration.
	Retention time.Duration
}

// LockState is the persisted lockout record of one credential identifier.
type LockState struct {
	AttemptCount int
	LockedUntil  time.Time
}

// Locked reports whether the lock is still in force at now.
func (s LockState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// RetryAfter is the remaining lock time at now, zero when unlocked.
func (s LockState) RetryAfter(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// expired reports whether a lock was set and has run out at now.
func (s LockState) expired(now time.Time) bool {
	return !s.LockedUntil.IsZero() && !now.Before(s.LockedUntil)
}

// LockStore persists lock state. RecordFailure must be atomic per identifier.
type LockStore interface {
	Load(ctx context.Context, identifier string) (LockState, error)
	// RecordFailure clears an expired lock, then increments the counter unless a lock is
	// in force, locking for lockFor once threshold is reached. It returns the new state.
	RecordFailure(ctx context.Context, identifier string, now time.Time, threshold int, lockFor, ttl time.Duration) (LockState, error)
	Reset(ctx context.Context, identifier string) error
}

// LockoutLimiter tracks failed login attempts per credential identifier and locks the
// identifier once the configured threshold is reached. Expiry is evaluated lazily.
type LockoutLimiter struct {
	store  LockStore
	config LockoutConfig
	now    func() time.Time
}

// NewLockoutLimiter creates a new lockout limiter. A nil clock uses time.Now.
func NewLockoutLimiter(store LockStore, cfg LockoutConfig, now func() time.Time) *LockoutLimiter {
	if now == nil {
		now = time.Now
	}
	return &LockoutLimiter{store: store, config: cfg, now: now}
}

// Threshold returns the configured failure threshold.
func (l *LockoutLimiter) Threshold() int {
	if l == nil {
		return 0
	}
	return l.config.Threshold
}

// Now returns the limiter clock.
func (l *LockoutLimiter) Now() time.Time {
	return l.now()
}

// State returns the effective lock state. A lock that has run out reads as a fresh
// zero state even before the backend record is cleared.
func (l *LockoutLimiter) State(ctx context.Context, identifier string) (LockState, error) {
	if l == nil {
		return LockState{}, nil
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return LockState{}, ErrMissingIdentifier
	}

	st, err := l.store.Load(ctx, identifier)
	if err != nil {
		return LockState{}, err
	}
	if st.expired(l.now()) {
		return LockState{}, nil
	}
	return st, nil
}

// RecordFailure counts one failed attempt and returns the resulting state.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, identifier string) (LockState, error) {
	if l == nil {
		return LockState{}, nil
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return LockState{}, ErrMissingIdentifier
	}

	ttl := l.config.Retention
	if ttl < l.config.Duration {
		ttl = l.config.Duration
	}
	return l.store.RecordFailure(ctx, identifier, l.now(), l.config.Threshold, l.config.Duration, ttl)
}

// Reset clears the failure counter and any lock (successful login or manual unlock).
func (l *LockoutLimiter) Reset(ctx context.Context, identifier string) error {
	if l == nil {
		return nil
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ErrMissingIdentifier
	}
	return l.store.Reset(ctx, identifier)
}

// Remaining is how many failures are left before the lock engages.
func (l *LockoutLimiter) Remaining(st LockState) int {
	if l == nil {
		return 0
	}
	if n := l.config.Threshold - st.AttemptCount; n > 0 {
		return n
	}
	return 0
}
