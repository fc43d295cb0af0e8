package llm

import (
	"context"
	"sync"
	"time"
)

const (
	rateWindow       = time.Minute
	maxRecheckPeriod = time.Second
)

// RateLimiter 滑动窗口限流器：任意 60 秒内的调用次数不超过 limit
// 超限时调用方阻塞等待，不会被拒绝
type RateLimiter struct {
	mu    sync.Mutex
	limit int
	calls []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter 创建限流器，limit 小于 1 时按 1 处理
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit: max(limit, 1),
		now:   time.Now,
		sleep: sleepContext,
	}
}

// SetLimit 修改每分钟上限，等待中的调用在下一次复查时生效
func (l *RateLimiter) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = max(limit, 1)
}

// Limit 当前每分钟上限
func (l *RateLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Acquire 阻塞直到可以再发起一次调用并记录该调用，ctx 取消时返回错误
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		if err := l.sleep(ctx, min(wait, maxRecheckPeriod)); err != nil {
			return err
		}
	}
}

func (l *RateLimiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-rateWindow)
	evict := 0
	for evict < len(l.calls) && !l.calls[evict].After(cutoff) {
		evict++
	}
	l.calls = l.calls[evict:]

	if len(l.calls) < l.limit {
		l.calls = append(l.calls, now)
		return 0, true
	}

	// 上限被调低后队列可能超过 limit，需等到足够多的记录过期
	oldest := l.calls[len(l.calls)-l.limit]
	return oldest.Add(rateWindow).Sub(now), false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
