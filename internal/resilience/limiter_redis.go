package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript атомарно пополняет и списывает bucket.
// KEYS[1]: ключ bucket; ARGV: rate (токенов/с), capacity, cost, now (секунды).
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tostring(tokens)}
`)

// RedisLimiter: token bucket в Redis, общий для всех экземпляров сервиса.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	rps    float64
	burst  int
	now    func() time.Time
}

// NewRedisLimiter создаёт лимитер поверх готового клиента.
func NewRedisLimiter(client redis.UniversalClient, prefix string, rps float64, burst int) *RedisLimiter {
	if prefix == "" {
		prefix = "ticketing:limiter"
	}
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RedisLimiter{client: client, prefix: prefix, rps: rps, burst: burst, now: time.Now}
}

// Allow выполняет Lua-скрипт и сообщает, был ли списан токен.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(l.now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, l.rps, l.burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("redis limiter: unexpected script response %T", res)
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

var _ Limiter = (*RedisLimiter)(nil)
