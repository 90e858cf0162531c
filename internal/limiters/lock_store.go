package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordFailureScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local lock_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local attempts = tonumber(redis.call("HGET", key, "attempts") or "0") or 0
local locked_until = tonumber(redis.call("HGET", key, "locked_until") or "0") or 0

if locked_until > 0 and now >= locked_until then
  attempts = 0
  locked_until = 0
end

if locked_until > now then
  return {attempts, locked_until}
end

attempts = attempts + 1
if attempts >= threshold then
  locked_until = now + lock_ms
end

redis.call("HSET", key, "attempts", attempts, "locked_until", locked_until)
redis.call("PEXPIRE", key, ttl_ms)
return {attempts, locked_until}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// RedisLockStore keeps one hash per identifier with attempts and locked_until (unix ms).
type RedisLockStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLockStore creates a [RedisLockStore]. An empty prefix defaults to "alo".
func NewRedisLockStore(client redis.UniversalClient, prefix string) *RedisLockStore {
	if prefix == "" {
		prefix = "alo"
	}
	return &RedisLockStore{redis: client, prefix: prefix}
}

func (s *RedisLockStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Load implements [LockStore].
func (s *RedisLockStore) Load(ctx context.Context, identifier string) (LockState, error) {
	vals, err := s.redis.HMGet(ctx, s.key(identifier), "attempts", "locked_until").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LockState{}, nil
		}
		return LockState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	var st LockState
	if len(vals) == 2 {
		if raw, ok := vals[0].(string); ok {
			st.AttemptCount = int(parseInt(raw))
		}
		if raw, ok := vals[1].(string); ok {
			if ms := parseInt(raw); ms > 0 {
				st.LockedUntil = time.UnixMilli(ms)
			}
		}
	}
	return st, nil
}

// RecordFailure implements [LockStore].
func (s *RedisLockStore) RecordFailure(ctx context.Context, identifier string, now time.Time, threshold int, lockFor, ttl time.Duration) (LockState, error) {
	res, err := recordFailureLua.Run(ctx, s.redis, []string{s.key(identifier)},
		now.UnixMilli(), threshold, lockFor.Milliseconds(), ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return LockState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(res) != 2 {
		return LockState{}, fmt.Errorf("%w: malformed lockout reply", ErrLockoutUnavailable)
	}

	st := LockState{AttemptCount: int(res[0])}
	if res[1] > 0 {
		st.LockedUntil = time.UnixMilli(res[1])
	}
	return st, nil
}

// Reset implements [LockStore].
func (s *RedisLockStore) Reset(ctx context.Context, identifier string) error {
	if err := s.redis.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func parseInt(raw string) int64 {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

type memoryLock struct {
	state     LockState
	expiresAt time.Time
}

// MemoryLockStore is an in-process [LockStore].
type MemoryLockStore struct {
	mu        sync.Mutex
	locks     map[string]*memoryLock
	now       func() time.Time
	nextSweep time.Time
}

// memorySweepInterval spaces out full scans for expired lock records.
const memorySweepInterval = time.Minute

// NewMemoryLockStore returns an empty [MemoryLockStore]. now drives record expiry;
// nil uses time.Now.
func NewMemoryLockStore(now func() time.Time) *MemoryLockStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryLockStore{locks: make(map[string]*memoryLock), now: now}
}

func (s *MemoryLockStore) get(identifier string) *memoryLock {
	rec := s.locks[identifier]
	if rec != nil && !rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt) {
		delete(s.locks, identifier)
		return nil
	}
	return rec
}

// Load implements [LockStore].
func (s *MemoryLockStore) Load(ctx context.Context, identifier string) (LockState, error) {
	if err := ctx.Err(); err != nil {
		return LockState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.get(identifier); rec != nil {
		return rec.state, nil
	}
	return LockState{}, nil
}

// RecordFailure implements [LockStore].
func (s *MemoryLockStore) RecordFailure(ctx context.Context, identifier string, now time.Time, threshold int, lockFor, ttl time.Duration) (LockState, error) {
	if err := ctx.Err(); err != nil {
		return LockState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	rec := s.get(identifier)
	if rec == nil {
		rec = &memoryLock{}
		s.locks[identifier] = rec
	}
	if rec.state.expired(now) {
		rec.state = LockState{}
	}
	if rec.state.Locked(now) {
		return rec.state, nil
	}

	rec.state.AttemptCount++
	if rec.state.AttemptCount >= threshold {
		rec.state.LockedUntil = now.Add(lockFor)
	}
	rec.expiresAt = now.Add(ttl)
	return rec.state, nil
}

// sweep deletes records past their retention. Callers hold mu.
func (s *MemoryLockStore) sweep() {
	now := s.now()
	if now.Before(s.nextSweep) {
		return
	}
	for identifier, rec := range s.locks {
		if !rec.expiresAt.IsZero() && !now.Before(rec.expiresAt) {
			delete(s.locks, identifier)
		}
	}
	s.nextSweep = now.Add(memorySweepInterval)
}

// Reset implements [LockStore].
func (s *MemoryLockStore) Reset(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, identifier)
	return nil
}
