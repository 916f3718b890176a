package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// applyBatchScript runs a Batch in one step.
// KEYS: guard, match keys..., absent keys..., set keys..., delete keys..., incr keys...
// ARGV: guarded, expect, ttl_ms, nmatch, nabsent, nset, ndel, nincr, match values..., set values...
const applyBatchScript = `
if ARGV[1] == "1" then
  local current = tonumber(redis.call("GET", KEYS[1]) or "0")
  if current ~= tonumber(ARGV[2]) then
    return 0
  end
end
local ttl = tonumber(ARGV[3])
local nmatch = tonumber(ARGV[4])
local nabsent = tonumber(ARGV[5])
local nset = tonumber(ARGV[6])
local ndel = tonumber(ARGV[7])
local nincr = tonumber(ARGV[8])
local k = 2
local a = 9
for i = 1, nmatch do
  if redis.call("GET", KEYS[k]) ~= ARGV[a] then
    return 0
  end
  k = k + 1
  a = a + 1
end
for i = 1, nabsent do
  if redis.call("EXISTS", KEYS[k]) == 1 then
    return 0
  end
  k = k + 1
end
for i = 1, nset do
  if ttl > 0 then
    redis.call("SET", KEYS[k], ARGV[a], "PX", ttl)
  else
    redis.call("SET", KEYS[k], ARGV[a])
  end
  k = k + 1
  a = a + 1
end
for i = 1, ndel do
  redis.call("DEL", KEYS[k])
  k = k + 1
end
for i = 1, nincr do
  redis.call("INCR", KEYS[k])
  if ttl > 0 then
    redis.call("PEXPIRE", KEYS[k], ttl)
  end
  k = k + 1
end
return 1
`

var applyBatchLua = redis.NewScript(applyBatchScript)

// RedisMedium stores sessions in Redis so they survive restarts and are shared
// between portal instances.
type RedisMedium struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisMedium wraps an existing client. A zero ttl keeps keys until cleared.
func NewRedisMedium(rdb redis.UniversalClient, ttl time.Duration) *RedisMedium {
	return &RedisMedium{rdb: rdb, ttl: ttl}
}

func (m *RedisMedium) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := m.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (m *RedisMedium) Incr(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if m.ttl > 0 {
			pipe.PExpire(ctx, key, m.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}

func (m *RedisMedium) Apply(ctx context.Context, b Batch) (bool, error) {
	setKeys := b.setKeys()
	matchKeys := b.matchKeys()

	keys := make([]string, 0, 1+len(matchKeys)+len(b.Absent)+len(setKeys)+len(b.Delete)+len(b.Incr))
	keys = append(keys, b.Guard)
	keys = append(keys, matchKeys...)
	keys = append(keys, b.Absent...)
	keys = append(keys, setKeys...)
	keys = append(keys, b.Delete...)
	keys = append(keys, b.Incr...)

	guarded := "0"
	if b.Guard != "" {
		guarded = "1"
	}
	args := make([]interface{}, 0, 8+len(matchKeys)+len(setKeys))
	args = append(args,
		guarded,
		strconv.FormatInt(b.Expect, 10),
		strconv.FormatInt(m.ttl.Milliseconds(), 10),
		len(matchKeys),
		len(b.Absent),
		len(setKeys),
		len(b.Delete),
		len(b.Incr),
	)
	for _, k := range matchKeys {
		args = append(args, b.Match[k])
	}
	for _, k := range setKeys {
		args = append(args, b.Set[k])
	}

	res, err := applyBatchLua.Run(ctx, m.rdb, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("redis apply batch: %w", err)
	}
	return res == 1, nil
}

func (m *RedisMedium) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

// Close releases the underlying client
func (m *RedisMedium) Close() error {
	return m.rdb.Close()
}
