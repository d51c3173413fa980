package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/BandwidthOnDemand/nsi-auth/internal/config"
	"github.com/rs/zerolog"
)

type Limiter interface {
	Allow(ctx context.Context) bool
	Stop()
}

type LimiterConfig struct {
	Key        string
	Capacity   int
	RatePS     int           // tokens/秒
	RefillRate time.Duration // 補充時間間隔, fixed window 的視窗長度
}

func GetDefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Key:        "nsi-auth:validate",
		Capacity:   100,
		RatePS:     100,
		RefillRate: time.Second,
	}
}

// New 依設定建立限流器, RateLimitNone 回傳 nil
func New(cf *config.Config, client RedisClient, logger zerolog.Logger) (Limiter, error) {
	lc := &LimiterConfig{
		Key:        GetDefaultLimiterConfig().Key,
		Capacity:   cf.RateLimitCapacity,
		RatePS:     cf.RateLimitRatePS,
		RefillRate: cf.RateLimitRefill,
	}

	switch cf.RateLimitType {
	case config.RateLimitNone, "":
		return nil, nil
	case config.RateLimitFixedWindow:
		return NewFixedWindow(lc), nil
	case config.RateLimitTokenBucket:
		return NewTokenBucket(lc), nil
	case config.RateLimitRedisBucket:
		if client == nil {
			return nil, fmt.Errorf("redis client is required for %s", cf.RateLimitType)
		}
		return NewRedisTokenBucket(client, lc, logger), nil
	default:
		return nil, fmt.Errorf("unknown rate limit type %q", cf.RateLimitType)
	}
}
