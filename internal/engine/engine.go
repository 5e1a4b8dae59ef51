// Package engine 每个交易对一个决策循环：拉取快照、调用决策核心、下单与撤单。
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"crypto-trading-bot/internal/executor"
	"crypto-trading-bot/internal/metrics"
	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/notify"
	"crypto-trading-bot/internal/service"
	"crypto-trading-bot/internal/strategy"
	"crypto-trading-bot/pkg/id"

	"go.uber.org/zap"
)

const (
	cycleInterval    = time.Second
	fetchBackoff     = 3 * time.Second
	feeRefreshEvery  = 3 * time.Minute
	budgetTick       = time.Second
	budgetBurst      = 12
	stopFlushTimeout = 10 * time.Second
)

// ErrNotInitialized 在 Init 成功之前运行周期
var ErrNotInitialized = errors.New("engine not initialized")

// FetchError 拉取快照失败，周期中止并退避重试
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Op, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// Publisher 接收每个周期的结果 (例如 WebSocket 推送)
type Publisher interface {
	Publish(CycleOutcome)
}

type Options struct {
	Instance  string
	Config    service.InstanceConfig
	Client    executor.ExchangeClient
	Sink      notify.Sink
	Confirm   ConfirmationPort // 为空时按 AutoExecute 选择
	Publisher Publisher        // 可选
	Logger    *zap.Logger
}

// Engine 单个交易对的决策循环。state 只在循环所在的 goroutine 中访问
type Engine struct {
	name      string
	pair      model.Pair
	cfg       service.InstanceConfig
	client    executor.ExchangeClient
	sink      notify.Sink
	confirm   ConfirmationPort
	publisher Publisher
	logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	budget   *RequestBudget
	dispatch *dispatcher
	state    EngineState

	mu   sync.RWMutex
	last *CycleOutcome
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = service.Logger
	}
	pair := opts.Config.Pair()
	logger = logger.With(zap.String("Instance", opts.Instance), zap.String("Pair", pair.String()))

	sink := opts.Sink
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}
	confirm := opts.Confirm
	if confirm == nil {
		if opts.Config.Strategy.AutoExecute {
			confirm = AutoConfirm{}
		} else {
			confirm = NewManualConfirmation(sink, logger)
		}
	}

	e := &Engine{
		name:      opts.Instance,
		pair:      pair,
		cfg:       opts.Config,
		client:    opts.Client,
		sink:      sink,
		confirm:   confirm,
		publisher: opts.Publisher,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		budget:    NewRequestBudget(budgetTick, budgetBurst),
	}
	e.dispatch = newDispatcher(opts.Client, pair, logger, e.clock)
	return e
}

func (e *Engine) Name() string { return e.name }

func (e *Engine) Pair() model.Pair { return e.pair }

func (e *Engine) clock() time.Time { return e.now() }

// Init 获取交易对限制与首个快照，计算初始批次上限和会话起点
func (e *Engine) Init(ctx context.Context) error {
	e.budget.Spend(1)
	limits, err := e.client.GetCurrencyLimits(ctx)
	if err != nil {
		return &FetchError{Op: "currency limits", Err: err}
	}
	e.state.CurrencyLimits = limits
	e.state.Limits = strategy.ResolveLimits(limits, e.pair)

	snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	stats := strategy.NewMarketStats(snap)
	p := strategy.Portfolio{Exchange: snap.ExchangeBalance(), Target: snap.TargetBalance()}

	e.state.Session = strategy.NewSession(stats, p, e.cfg.Strategy, e.state.Limits)
	e.state.StartBalanceInExchangeCurrency = p.Exchange.Total()
	e.state.StartBalanceInTargetCurrency = p.Target.Total()
	e.state.StartValueInExchangeCurrency, e.state.StartValueInTargetCurrency = strategy.SessionValues(p, stats.Sale.Last)
	e.state.StartedAt = e.now()
	e.state.Initialized = true

	e.logger.Info("Engine initialized",
		zap.Int("InitialBatchCycles", e.state.Session.InitialBatchCycles),
		zap.Float64("InitialBuyingCap", e.state.Session.InitialBuyingCapInTargetCurrency),
		zap.Float64("InitialSellingCap", e.state.Session.InitialSellingCapInExchangeCurrency),
		zap.Float64("StartValue", e.state.StartValueInTargetCurrency),
		zap.Float64("ExchangeMin", e.state.Limits.ExchangeMin),
		zap.Float64("TargetMin", e.state.Limits.TargetMin))
	return nil
}

// State 当前引擎状态的副本，只能在循环 goroutine 中或循环停止后调用
func (e *Engine) State() EngineState {
	return e.state
}

// Run 初始化后持续运行决策周期，直到 ctx 取消。周期之间才响应取消。
// 初始化时的拉取失败与周期内一样退避重试
func (e *Engine) Run(ctx context.Context) error {
	for {
		err := e.Init(ctx)
		if err == nil {
			break
		}
		var fe *FetchError
		if !errors.As(err, &fe) {
			return fmt.Errorf("init %s: %w", e.name, err)
		}
		metrics.IncCycle(e.name, metrics.ResultFetchError)
		e.logger.Warn("Initialization fetch failed", zap.String("op", fe.Op), zap.Error(fe.Err))
		e.budget.Reset()
		if !e.sleep(ctx, fetchBackoff) {
			return nil
		}
	}
	e.notify(ctx, fmt.Sprintf("*Trading engine started* [%s] %s. Value: %.2f %s",
		e.name, e.pair, e.state.StartValueInTargetCurrency, e.pair.TargetCurrency))

	defer func() {
		e.dispatch.wait()
		e.collectCancellations()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopFlushTimeout)
		defer cancel()
		e.notify(fctx, fmt.Sprintf("*Trading engine stopped* [%s] %s", e.name, e.pair))
		e.logger.Info("Engine stopped")
	}()

	for ctx.Err() == nil {
		if d := e.budget.Settle(); d > 0 {
			e.logger.Debug("Request budget exhausted", zap.Duration("sleep", d))
			if !e.sleep(ctx, d) {
				break
			}
		}
		e.collectCancellations()

		outcome, err := e.safeCycle(context.WithoutCancel(ctx))
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				metrics.IncCycle(e.name, metrics.ResultFetchError)
				e.logger.Warn("Snapshot fetch failed", zap.String("op", fe.Op), zap.Error(fe.Err))
				e.budget.Reset()
				if !e.sleep(ctx, fetchBackoff) {
					break
				}
				continue
			}
			metrics.IncCycle(e.name, metrics.ResultError)
			e.logger.Error("Cycle failed", zap.Error(err))
		} else {
			e.publish(outcome)
		}

		if !e.sleep(ctx, cycleInterval) {
			break
		}
	}
	return nil
}

// safeCycle 周期内的 panic 视为决策错误
func (e *Engine) safeCycle(ctx context.Context) (out CycleOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Cycle panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return e.RunCycle(ctx)
}

// RunCycle 拉取快照、决策并分发下单与撤单。
// 快照拉取失败返回 FetchError；完成决策后初始批次计数减一
func (e *Engine) RunCycle(ctx context.Context) (CycleOutcome, error) {
	if !e.state.Initialized {
		return CycleOutcome{}, ErrNotInitialized
	}
	started := e.now()
	snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return CycleOutcome{}, err
	}
	defer func() {
		if e.state.Session.InitialBatchCycles > 0 {
			e.state.Session.InitialBatchCycles--
		}
	}()
	return e.decide(ctx, snap, started), nil
}

// Preview 拉取快照并计算报价与决策，不下单也不撤单
func (e *Engine) Preview(ctx context.Context) (strategy.Evaluation, error) {
	if !e.state.Initialized {
		return strategy.Evaluation{}, ErrNotInitialized
	}
	snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return strategy.Evaluation{}, err
	}
	return e.evaluate(snap), nil
}

// Quotes 最近一次周期的报价
func (e *Engine) Quotes() (QuoteView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return QuoteView{}, false
	}
	return e.last.quoteView(), true
}

// LastOutcome 最近一次周期的完整结果
func (e *Engine) LastOutcome() (CycleOutcome, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return CycleOutcome{}, false
	}
	return *e.last, true
}

// --- 快照 ---

// fetchSnapshot 顺序：公共成交 -> 订单簿 -> 账户成交 -> 手续费 -> 挂单 -> 余额，任一失败即中止
func (e *Engine) fetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	now := e.now()
	cfg := e.cfg.Strategy
	snap := model.Snapshot{Pair: e.pair, FetchedAt: now}

	e.budget.Spend(1)
	trades, err := e.client.GetHistoricalTrades(ctx, e.pair, now.Add(-cfg.PublicLookback()))
	if err != nil {
		return snap, &FetchError{Op: "historical trades", Err: err}
	}
	snap.PublicPurchases, snap.PublicSales = model.SplitBySide(trades,
		now.Add(-cfg.PublicWindowForBuy()), now.Add(-cfg.PublicWindowForSell()))

	e.budget.Spend(1)
	if snap.Orderbook, err = e.client.GetPublicOrderbook(ctx, e.pair); err != nil {
		return snap, &FetchError{Op: "orderbook", Err: err}
	}

	e.budget.Spend(1)
	account, err := e.client.GetAccountTrades(ctx, e.pair)
	if err != nil {
		return snap, &FetchError{Op: "account trades", Err: err}
	}
	snap.AccountPurchases, snap.AccountSales = model.SplitBySide(account,
		now.Add(-cfg.AccountWindowForBuy()), now.Add(-cfg.AccountWindowForSell()))

	if e.state.FeesFetchedAt.IsZero() || now.Sub(e.state.FeesFetchedAt) >= feeRefreshEvery {
		e.budget.Spend(1)
		fees, err := e.client.GetAccountFees(ctx, e.pair)
		if err != nil {
			return snap, &FetchError{Op: "account fees", Err: err}
		}
		e.state.Fees, e.state.FeesFetchedAt = fees, now
	}
	snap.Fees = e.state.Fees

	e.budget.Spend(1)
	if snap.OpenOrders, err = e.client.GetOpenOrders(ctx, e.pair); err != nil {
		return snap, &FetchError{Op: "open orders", Err: err}
	}

	e.budget.Spend(1)
	if snap.Balances, err = e.client.GetAccountBalance(ctx); err != nil {
		return snap, &FetchError{Op: "account balance", Err: err}
	}
	return snap, nil
}

func (e *Engine) evaluate(snap model.Snapshot) strategy.Evaluation {
	return strategy.Evaluate(strategy.Inputs{
		Snapshot:       snap,
		Strategy:       e.cfg.Strategy,
		Limits:         e.state.Limits,
		Session:        e.state.Session,
		PricePrecision: e.cfg.PricePrecision,
		Now:            snap.FetchedAt,
	})
}

// --- 决策与分发 ---

func (e *Engine) decide(ctx context.Context, snap model.Snapshot, started time.Time) CycleOutcome {
	ev := e.evaluate(snap)
	out := CycleOutcome{
		ID:                id.NewAt(started),
		Instance:          e.name,
		Pair:              e.pair,
		StartedAt:         started,
		State:             ev.Trend.State,
		Trend:             ev.Trend,
		BuyQuote:          ev.Buy,
		SellQuote:         ev.Sell,
		SessionStartValue: e.state.StartValueInTargetCurrency,
		CurrentValue:      ev.Portfolio.EstimatedTargetValue(ev.Stats.Sale.Last),
	}

	seen := make(map[string]struct{})
	e.cancel(ctx, &out, seen, ev.ImmediateCancellations())

	for _, d := range []*strategy.Decision{&ev.BuyDecision, &ev.SellDecision} {
		if d.Action != strategy.ActionExecute {
			continue
		}
		switch e.confirm.Confirm(ctx, e.name, *d) {
		case Pending:
			d.Action, d.Reason, d.Cancellations = strategy.ActionAwaitConfirmation, strategy.ReasonAwaitingConfirmation, nil
			continue
		case Rejected:
			d.Action, d.Reason, d.Cancellations = strategy.ActionSkip, strategy.ReasonConfirmationRejected, nil
			continue
		}

		order, err := e.execute(ctx, *d, out.CurrentValue)
		if err != nil {
			continue
		}
		out.Orders = append(out.Orders, *order)
		// 新单成功后才撤掉被取代的挂单
		e.cancel(ctx, &out, seen, d.Cancellations)
	}

	out.BuyDecision, out.SellDecision = ev.BuyDecision, ev.SellDecision
	return out
}

func (e *Engine) cancel(ctx context.Context, out *CycleOutcome, seen map[string]struct{}, cs []strategy.Cancellation) {
	var todo []strategy.Cancellation
	for _, c := range cs {
		if _, ok := seen[c.Order.ID]; ok {
			continue
		}
		seen[c.Order.ID] = struct{}{}
		todo = append(todo, c)
	}
	if len(todo) == 0 {
		return
	}
	e.budget.Spend(len(todo))
	e.dispatch.cancel(ctx, todo)
	out.Cancellations = append(out.Cancellations, todo...)
}

func (e *Engine) execute(ctx context.Context, d strategy.Decision, value float64) (*model.OrderResult, error) {
	e.budget.Spend(1)
	order, err := e.client.ExecuteOrder(ctx, d.Side, e.pair, d.Amount, d.Price)
	if err == nil && order == nil {
		err = executor.ErrOrderRejected
	}
	side := d.Side.String()
	if err != nil {
		metrics.IncOrder(e.name, side, metrics.ResultRejected)
		e.logger.Error("Order rejected",
			zap.String("side", side),
			zap.Float64("amount", d.Amount),
			zap.Float64("price", d.Price),
			zap.Error(err))
		e.notify(ctx, fmt.Sprintf("*Order failed* [%s] %s %.8f %s @ %.8f %s: %v",
			e.name, d.Label(), d.Amount, e.pair.ExchangeCurrency, d.Price, e.pair.TargetCurrency, err))
		return nil, err
	}

	metrics.IncOrder(e.name, side, metrics.ResultPlaced)
	if d.Side == model.SideBuy {
		e.state.Session.LastBuyExecution = e.now()
	} else {
		e.state.Session.LastSellExecution = e.now()
	}
	e.logger.Info("Order placed",
		zap.String("OrderID", order.ID),
		zap.String("side", side),
		zap.Float64("amount", order.Amount),
		zap.Float64("price", order.Price),
		zap.Float64("valueBefore", d.OriginalPortfolioValue),
		zap.Float64("valueAfter", d.FinalPortfolioValue))
	e.notify(ctx, fmt.Sprintf("*Order placed* [%s] %s id %s: %.8f %s @ %.8f %s. Value: %.2f -> %.2f %s (now %.2f)",
		e.name, d.Label(), order.ID, order.Amount, e.pair.ExchangeCurrency, order.Price, e.pair.TargetCurrency,
		d.OriginalPortfolioValue, d.FinalPortfolioValue, e.pair.TargetCurrency, value))
	return order, nil
}

// collectCancellations 取回撤单结果，记录最近撤单时间并通知
func (e *Engine) collectCancellations() {
	for _, r := range e.dispatch.drain() {
		o := r.Cancellation.Order
		switch {
		case r.Err != nil:
			metrics.IncCancellation(e.name, metrics.ResultFailed)
			e.logger.Error("Cancellation failed", zap.String("OrderID", o.ID), zap.Error(r.Err))
		case !r.Cancelled:
			metrics.IncCancellation(e.name, metrics.ResultMissing)
			e.logger.Debug("Order already gone", zap.String("OrderID", o.ID))
		default:
			metrics.IncCancellation(e.name, metrics.ResultCancelled)
			if o.Side == model.SideBuy {
				e.state.LastBuyCancellation = r.At
			} else {
				e.state.LastSellCancellation = r.At
			}
			e.logger.Info("Order cancelled", zap.String("OrderID", o.ID), zap.String("reason", r.Cancellation.Reason))

			var value float64
			if last, ok := e.LastOutcome(); ok {
				value = last.CurrentValue
			}
			e.notify(context.Background(), fmt.Sprintf("*Order cancelled* [%s] %s id %s: %.8f %s @ %.8f %s (%s). Value: %.2f %s",
				e.name, o.Side, o.ID, o.Amount, e.pair.ExchangeCurrency, o.Price, e.pair.TargetCurrency,
				r.Cancellation.Reason, value, e.pair.TargetCurrency))
		}
	}
}

func (e *Engine) publish(out CycleOutcome) {
	e.mu.Lock()
	e.last = &out
	e.mu.Unlock()

	metrics.IncCycle(e.name, metrics.ResultOK)
	for _, d := range []strategy.Decision{out.BuyDecision, out.SellDecision} {
		metrics.IncDecision(e.name, d.Side.String(), string(d.Action))
	}
	metrics.SetQuote(e.name, model.SideBuy.String(), out.BuyQuote.Price, out.BuyQuote.Amount)
	metrics.SetQuote(e.name, model.SideSell.String(), out.SellQuote.Price, out.SellQuote.Amount)
	metrics.SetPortfolioValue(e.name, out.CurrentValue)

	if e.publisher != nil {
		e.publisher.Publish(out)
	}

	fields := []zap.Field{
		zap.String("CycleID", out.ID),
		zap.String("state", string(out.State)),
		zap.String("buy", out.BuyDecision.String()),
		zap.String("sell", out.SellDecision.String()),
		zap.Int("cancellations", len(out.Cancellations)),
		zap.Int("orders", len(out.Orders)),
		zap.Float64("value", out.CurrentValue),
		zap.Float64("startValue", out.SessionStartValue),
	}
	if len(out.Orders) > 0 || len(out.Cancellations) > 0 {
		e.logger.Info("Cycle completed", fields...)
	} else {
		e.logger.Debug("Cycle completed", fields...)
	}
}

func (e *Engine) notify(ctx context.Context, msg string) {
	if err := e.sink.Send(ctx, msg); err != nil {
		e.logger.Warn("Failed to send notification", zap.Error(err))
	}
}

// sleepContext 可被 ctx 打断的休眠，被打断时返回 false
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
