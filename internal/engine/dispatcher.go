package engine

import (
	"context"
	"sync"
	"time"

	"crypto-trading-bot/internal/executor"
	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/strategy"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const cancelTimeout = 15 * time.Second

// cancelResult 一次撤单的结果，由决策循环在周期之间取回
type cancelResult struct {
	Cancellation strategy.Cancellation
	Cancelled    bool
	Err          error
	At           time.Time
}

// dispatcher 并发撤单，不阻塞决策周期；失败只记录，不在周期内重试
type dispatcher struct {
	client executor.Account
	pair   model.Pair
	logger *zap.Logger
	now    func() time.Time

	wg      conc.WaitGroup
	mu      sync.Mutex
	results []cancelResult
}

func newDispatcher(client executor.Account, pair model.Pair, logger *zap.Logger, now func() time.Time) *dispatcher {
	return &dispatcher{client: client, pair: pair, logger: logger, now: now}
}

// cancel 发出撤单，立即返回
func (d *dispatcher) cancel(ctx context.Context, cancellations []strategy.Cancellation) {
	for _, c := range cancellations {
		d.wg.Go(func() {
			cctx, stop := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
			defer stop()

			ok, err := d.client.CancelOrder(cctx, d.pair, c.Order.ID)
			d.mu.Lock()
			d.results = append(d.results, cancelResult{Cancellation: c, Cancelled: ok, Err: err, At: d.now()})
			d.mu.Unlock()
		})
	}
}

// drain 取走已完成的撤单结果
func (d *dispatcher) drain() []cancelResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.results
	d.results = nil
	return out
}

// wait 等待所有撤单结束，撤单中的 panic 只记录
func (d *dispatcher) wait() {
	if r := d.wg.WaitAndRecover(); r != nil {
		d.logger.Error("Cancellation panicked", zap.String("panic", r.String()))
	}
}
