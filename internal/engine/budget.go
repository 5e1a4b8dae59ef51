package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxDeficitSleep = 5 * time.Second

// RequestBudget 请求节奏控制：每个 tick 累积一个额度，每次请求消耗一个额度，
// 透支时在下一个周期开始前休眠 (最多 5 秒) 并重置额度
type RequestBudget struct {
	mu      sync.Mutex
	tick    time.Duration
	burst   int
	limiter *rate.Limiter
	now     func() time.Time
}

func NewRequestBudget(tick time.Duration, burst int) *RequestBudget {
	b := &RequestBudget{tick: tick, burst: max(burst, 1), now: time.Now}
	b.limiter = b.newLimiter()
	return b
}

func (b *RequestBudget) newLimiter() *rate.Limiter {
	l := rate.NewLimiter(rate.Every(b.tick), b.burst)
	// 从满额开始
	l.AllowN(b.now(), 0)
	return l
}

// Spend 记录 n 次请求，额度允许为负
func (b *RequestBudget) Spend(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	at := b.now()
	for range n {
		b.limiter.ReserveN(at, 1)
	}
}

// Deficit 当前透支对应的休眠时长
func (b *RequestBudget) Deficit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	tokens := b.limiter.TokensAt(b.now())
	if tokens >= 0 {
		return 0
	}
	return min(time.Duration(-tokens*float64(b.tick)), maxDeficitSleep)
}

// Reset 清空透支，恢复满额
func (b *RequestBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limiter = b.newLimiter()
}

// Settle 返回需要休眠的时长；有透支时同时重置额度
func (b *RequestBudget) Settle() time.Duration {
	d := b.Deficit()
	if d > 0 {
		b.Reset()
	}
	return d
}
