package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisClient 介面定義, *redis.Client 與 *redis.ClusterClient 皆符合
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local currentTokens = tonumber(bucket[1])
local lastRefill = tonumber(bucket[2])

if currentTokens == nil then
	currentTokens = capacity
	lastRefill = now
end

local elapsedSeconds = math.max(0, now - lastRefill) / 1000000000
currentTokens = math.min(capacity, currentTokens + elapsedSeconds * rate)

local allowed = 0
if currentTokens >= 1 then
	currentTokens = currentTokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', currentTokens, 'last_refill', now)
redis.call('EXPIRE', key, ttl)
return allowed
`

/*
RedisTokenBucket 多個副本共用同一個 bucket
redis 失敗時放行, 不讓快取異常影響授權
*/
type RedisTokenBucket struct {
	LimiterConfig
	client RedisClient
	logger zerolog.Logger
}

func NewRedisTokenBucket(client RedisClient, config *LimiterConfig, logger zerolog.Logger) *RedisTokenBucket {
	rb := &RedisTokenBucket{
		client: client,
		logger: logger,
	}

	if config != nil {
		rb.LimiterConfig = *config
	} else {
		rb.LimiterConfig = GetDefaultLimiterConfig()
	}

	return rb
}

func (r *RedisTokenBucket) Allow(ctx context.Context) bool {
	result, err := r.client.Eval(
		ctx,
		tokenBucketScript,
		[]string{r.Key},
		r.Capacity,
		r.RatePS,
		time.Now().UnixNano(),
		r.ttlSeconds(),
	).Int64()
	if err != nil {
		r.logger.Warn().Err(err).Str("key", r.Key).Msg("redis rate limit unavailable, allow request")
		return true
	}

	return result == 1
}

// bucket 填滿所需時間, 至少 60 秒
func (r *RedisTokenBucket) ttlSeconds() int {
	ttl := 60
	if r.RatePS > 0 {
		if fill := r.Capacity/r.RatePS + 1; fill > ttl {
			ttl = fill
		}
	}
	return ttl
}

func (r *RedisTokenBucket) Stop() {}
