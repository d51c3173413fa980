package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TokenBucket 單一 process 內的令牌桶, 以 ticker 每 RefillRate 依 RatePS 補充
// 背景 goroutine 由 Stop 結束
type TokenBucket struct {
	LimiterConfig
	tokens     atomic.Int64
	refilledAt atomic.Int64 // unix nano
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewTokenBucket(config *LimiterConfig) *TokenBucket {
	t := &TokenBucket{
		LimiterConfig: GetDefaultLimiterConfig(),
		stop:          make(chan struct{}),
	}
	if config != nil {
		t.LimiterConfig = *config
	}

	t.tokens.Store(int64(t.Capacity))
	t.refilledAt.Store(time.Now().UnixNano())
	go t.loop()
	return t
}

func (t *TokenBucket) Allow(context.Context) bool {
	for {
		n := t.tokens.Load()
		if n <= 0 {
			return false
		}
		if t.tokens.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (t *TokenBucket) loop() {
	ticker := time.NewTicker(t.RefillRate)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.refill(now)
		}
	}
}

// refill 不足一個 token 的時間保留到下一輪, 桶滿時重設起點
func (t *TokenBucket) refill(now time.Time) {
	for {
		n := t.tokens.Load()
		if n >= int64(t.Capacity) {
			t.refilledAt.Store(now.UnixNano())
			return
		}

		elapsed := time.Duration(now.UnixNano() - t.refilledAt.Load())
		add := int64(elapsed.Seconds() * float64(t.RatePS))
		if add <= 0 {
			return
		}

		next := min(n+add, int64(t.Capacity))
		if t.tokens.CompareAndSwap(n, next) {
			t.refilledAt.Store(now.UnixNano())
			return
		}
	}
}

func (t *TokenBucket) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}
