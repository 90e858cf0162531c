package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/plan"
	"github.com/redis/go-redis/v9"
)

const admitScript = `
local session_key = KEYS[1]
local active_key = KEYS[2]
local index_key = KEYS[3]
local device_id = ARGV[1]
local max_devices = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local idle = tonumber(ARGV[4])
local candidate_id = ARGV[5]
local plan_type = ARGV[6]
local user_id = ARGV[7]
local device_prefix = ARGV[8]

if idle > 0 then
  local members = redis.call("SMEMBERS", active_key)
  for _, other in ipairs(members) do
    if other ~= device_id then
      local other_key = device_prefix .. other
      local last = tonumber(redis.call("HGET", other_key, "last_activity") or "0")
      if now - last > idle then
        redis.call("SREM", active_key, other)
        if redis.call("EXISTS", other_key) == 1 then
          redis.call("HSET", other_key, "active", "0")
        end
      end
    end
  end
end

local outcome = 3
if redis.call("SISMEMBER", active_key, device_id) == 0 then
  local active = redis.call("SCARD", active_key)
  if active >= max_devices then
    return {0, active}
  end
  if redis.call("EXISTS", session_key) == 1 then
    outcome = 2
  else
    outcome = 1
    redis.call("HSET", session_key,
      "session_id", candidate_id,
      "user_id", user_id,
      "device_id", device_id,
      "created_at", ARGV[3])
  end
  redis.call("SADD", active_key, device_id)
  redis.call("SADD", index_key, device_id)
end

redis.call("HSET", session_key, "active", "1", "plan", plan_type, "last_activity", ARGV[3])
return {outcome, redis.call("SCARD", active_key), redis.call("HGETALL", session_key)}
`

var admitLua = redis.NewScript(admitScript)

const deactivateScript = `
local removed = redis.call("SREM", KEYS[2], ARGV[1])
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "active", "0")
end
return removed
`

var deactivateLua = redis.NewScript(deactivateScript)

const deactivateAllScript = `
local members = redis.call("SMEMBERS", KEYS[1])
for _, device in ipairs(members) do
  local key = ARGV[1] .. device
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "active", "0")
  end
end
redis.call("DEL", KEYS[1])
return #members
`

var deactivateAllLua = redis.NewScript(deactivateAllScript)

const touchScript = `
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "last_activity", ARGV[2])
return 1
`

var touchLua = redis.NewScript(touchScript)

// RedisStore keeps one hash per (user, device) plus an active-device set and a
// device index per user. All keys of one user share a hash tag so Lua admission
// stays on a single cluster slot.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore]. prefix namespaces every key; empty means "ads".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ads"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) userPrefix(userID string) string {
	return s.prefix + ":{" + userID + "}:"
}

func (s *RedisStore) devicePrefix(userID string) string {
	return s.userPrefix(userID) + "d:"
}

func (s *RedisStore) sessionKey(userID, deviceID string) string {
	return s.devicePrefix(userID) + deviceID
}

func (s *RedisStore) activeKey(userID string) string {
	return s.userPrefix(userID) + "active"
}

func (s *RedisStore) indexKey(userID string) string {
	return s.userPrefix(userID) + "devices"
}

// Admit implements [Store].
func (s *RedisStore) Admit(ctx context.Context, a Admission) (Session, AdmitOutcome, error) {
	keys := []string{
		s.sessionKey(a.UserID, a.DeviceID),
		s.activeKey(a.UserID),
		s.indexKey(a.UserID),
	}
	args := []any{
		a.DeviceID,
		a.MaxDevices,
		a.Now.UnixMilli(),
		a.IdleTimeout.Milliseconds(),
		a.SessionID,
		string(a.PlanType),
		a.UserID,
		s.devicePrefix(a.UserID),
	}

	res, err := admitLua.Run(ctx, s.redis, keys, args...).Slice()
	if err != nil {
		return Session{}, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) < 2 {
		return Session{}, 0, fmt.Errorf("%w: malformed admit reply", ErrStoreUnavailable)
	}

	outcome, _ := res[0].(int64)
	if outcome == 0 {
		return Session{}, 0, ErrDeviceLimitExceeded
	}
	if len(res) < 3 {
		return Session{}, 0, fmt.Errorf("%w: malformed admit reply", ErrStoreUnavailable)
	}

	pairs, ok := res[2].([]any)
	if !ok {
		return Session{}, 0, fmt.Errorf("%w: malformed admit reply", ErrStoreUnavailable)
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}

	sess, ok := decodeFields(fields)
	if !ok {
		return Session{}, 0, fmt.Errorf("%w: corrupt session hash", ErrStoreUnavailable)
	}
	return sess, AdmitOutcome(outcome), nil
}

// ActiveSessions implements [Store].
func (s *RedisStore) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	return s.load(ctx, userID, s.activeKey(userID))
}

// Sessions implements [Store].
func (s *RedisStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	return s.load(ctx, userID, s.indexKey(userID))
}

func (s *RedisStore) load(ctx context.Context, userID, setKey string) ([]Session, error) {
	deviceIDs, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(deviceIDs) == 0 {
		return []Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(deviceIDs))
	for i, deviceID := range deviceIDs {
		cmds[i] = pipe.HGetAll(ctx, s.sessionKey(userID, deviceID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Session, 0, len(cmds))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		sess, ok := decodeFields(fields)
		if !ok {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Deactivate implements [Store].
func (s *RedisStore) Deactivate(ctx context.Context, userID, deviceID string) (bool, error) {
	keys := []string{s.sessionKey(userID, deviceID), s.activeKey(userID)}
	removed, err := deactivateLua.Run(ctx, s.redis, keys, deviceID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed == 1, nil
}

// DeactivateAll implements [Store].
func (s *RedisStore) DeactivateAll(ctx context.Context, userID string) (int, error) {
	n, err := deactivateAllLua.Run(ctx, s.redis, []string{s.activeKey(userID)}, s.devicePrefix(userID)).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// Touch implements [Store].
func (s *RedisStore) Touch(ctx context.Context, userID, deviceID string, now time.Time) (bool, error) {
	keys := []string{s.sessionKey(userID, deviceID), s.activeKey(userID)}
	ok, err := touchLua.Run(ctx, s.redis, keys, deviceID, now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok == 1, nil
}

func decodeFields(fields map[string]string) (Session, bool) {
	sess := Session{
		SessionID: fields["session_id"],
		UserID:    fields["user_id"],
		DeviceID:  fields["device_id"],
		PlanType:  plan.Tag(fields["plan"]),
		IsActive:  fields["active"] == "1",
	}
	if sess.UserID == "" || sess.DeviceID == "" {
		return Session{}, false
	}
	created, ok := parseMillis(fields["created_at"])
	if !ok {
		return Session{}, false
	}
	last, ok := parseMillis(fields["last_activity"])
	if !ok {
		return Session{}, false
	}
	sess.CreatedAt = time.UnixMilli(created)
	sess.LastActivity = time.UnixMilli(last)
	return sess, true
}

// parseMillis accepts integer strings and the float notation some Lua runtimes emit.
func parseMillis(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}
