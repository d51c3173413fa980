package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

/*
會有突刺問題, 視窗交界處最多可通過兩倍容量
*/
type FixedWindow struct {
	LimiterConfig
	count     atomic.Int32
	startedAt time.Time
	mu        sync.RWMutex
	now       func() time.Time
}

func NewFixedWindow(config *LimiterConfig) *FixedWindow {
	fw := &FixedWindow{
		now: time.Now,
	}
	if config != nil {
		fw.LimiterConfig = *config
	} else {
		fw.LimiterConfig = GetDefaultLimiterConfig()
	}
	fw.startedAt = fw.now()
	return fw
}

func (w *FixedWindow) Allow(context.Context) bool {
	current := w.now()
	w.mu.RLock()
	needReset := current.Sub(w.startedAt) >= w.RefillRate
	w.mu.RUnlock()

	if needReset {
		w.mu.Lock()
		if current.Sub(w.startedAt) >= w.RefillRate {
			w.count.Store(0)
			w.startedAt = current
		}
		w.mu.Unlock()
	}

	for {
		n := w.count.Load()
		if n+1 > int32(w.Capacity) {
			return false
		}
		if w.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (w *FixedWindow) Stop() {}
