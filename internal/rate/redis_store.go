package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
redis.call("ZADD", key, now, ARGV[3])
redis.call("PEXPIRE", key, window)

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return {count, oldest[2]}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// RedisStore keeps sliding windows in Redis sorted sets.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore]. An empty prefix defaults to "rl".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// Key returns the Redis key used for identifier.
func (s *RedisStore) Key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Record implements [Store].
func (s *RedisStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, member string) (Window, error) {
	res, err := slidingWindowLua.Run(ctx, s.redis, []string{s.Key(key)},
		now.UnixMilli(), window.Milliseconds(), member).Slice()
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) < 2 {
		return Window{}, fmt.Errorf("%w: malformed window reply", ErrStoreUnavailable)
	}

	count, ok := res[0].(int64)
	if !ok {
		return Window{}, fmt.Errorf("%w: malformed window count", ErrStoreUnavailable)
	}
	raw, _ := res[1].(string)
	oldest, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Window{}, fmt.Errorf("%w: malformed window score %q", ErrStoreUnavailable, raw)
	}

	return Window{Count: int(count), Oldest: time.UnixMilli(int64(oldest))}, nil
}
