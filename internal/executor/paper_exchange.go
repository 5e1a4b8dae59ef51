package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// 成交记录只需覆盖账户历史窗口 (分钟级)
	paperFillRetention = 24 * time.Hour
	paperMaxFills      = 1000
)

// PaperExchange 使用真实公共行情、在内存中模拟账户的交易所。
// 挂单在每次获取订单簿时撮合：买单在最优卖价不高于挂单价时成交，卖单反之。
type PaperExchange struct {
	MarketData

	pair   model.Pair
	fees   model.TradingFees
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex // 保护账户状态
	balances model.BalanceSet
	orders   []model.OpenOrder
	fills    []model.TradeRecord
}

// NewPaperExchange 按初始资金创建模拟账户，费率配置为百分数 (0.1 = 0.1%)
func NewPaperExchange(market MarketData, pair model.Pair, cfg service.PaperConfig, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		MarketData: market,
		pair:       pair,
		fees: model.TradingFees{
			BuyingFeeInPercentage:  cfg.BuyingFeePercent / 100,
			SellingFeeInPercentage: cfg.SellingFeePercent / 100,
		},
		logger: logger.With(zap.String("exchange", service.ExchangePaper), zap.String("Pair", pair.String())),
		now:    time.Now,
		balances: model.BalanceSet{
			pair.ExchangeCurrency: {Currency: pair.ExchangeCurrency, Available: cfg.ExchangeBalance},
			pair.TargetCurrency:   {Currency: pair.TargetCurrency, Available: cfg.TargetBalance},
		},
	}
}

func (p *PaperExchange) Name() string { return service.ExchangePaper }

// GetPublicOrderbook 获取真实订单簿，并用它撮合模拟挂单
func (p *PaperExchange) GetPublicOrderbook(ctx context.Context, pair model.Pair) (model.Orderbook, error) {
	ob, err := p.MarketData.GetPublicOrderbook(ctx, pair)
	if err != nil {
		return ob, err
	}
	if pair == p.pair {
		p.match(ob)
	}
	return ob, nil
}

func (p *PaperExchange) GetAccountFees(_ context.Context, _ model.Pair) (model.TradingFees, error) {
	return p.fees, nil
}

func (p *PaperExchange) GetAccountBalance(_ context.Context) (model.BalanceSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(model.BalanceSet, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *PaperExchange) GetAccountTrades(_ context.Context, pair model.Pair) ([]model.TradeRecord, error) {
	if pair != p.pair {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.TradeRecord(nil), p.fills...), nil
}

func (p *PaperExchange) GetOpenOrders(_ context.Context, pair model.Pair) ([]model.OpenOrder, error) {
	if pair != p.pair {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.OpenOrder(nil), p.orders...), nil
}

// ExecuteOrder 冻结资金并挂单，余额不足时返回 ErrInsufficientBalance
func (p *PaperExchange) ExecuteOrder(_ context.Context, side model.Side, pair model.Pair, amount, price float64) (*model.OrderResult, error) {
	if pair != p.pair {
		return nil, fmt.Errorf("%w: paper account only trades %s", ErrOrderRejected, p.pair)
	}
	amount = service.Truncate(amount, service.AmountPrecision)
	if amount <= 0 || price <= 0 {
		return nil, fmt.Errorf("%w: amount %.8f price %.8f", ErrOrderRejected, amount, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	currency, cost := p.pair.TargetCurrency, amount*price
	if side == model.SideSell {
		currency, cost = p.pair.ExchangeCurrency, amount
	}
	bal := p.balances.Get(currency)
	if bal.Available < cost {
		p.logger.Info("Paper order rejected",
			zap.String("side", side.String()),
			zap.Float64("need", cost),
			zap.Float64("have", bal.Available))
		return nil, fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, cost, currency, bal.Available)
	}
	bal.Available -= cost
	bal.InOrders += cost
	p.balances[currency] = bal

	ts := p.now()
	order := model.OpenOrder{
		ID:        uuid.NewString(),
		Side:      side,
		Price:     price,
		Amount:    amount,
		Pending:   amount,
		Timestamp: ts,
	}
	p.orders = append(p.orders, order)

	p.logger.Info("Paper order placed",
		zap.String("OrderID", order.ID),
		zap.String("side", side.String()),
		zap.Float64("amount", amount),
		zap.Float64("price", price))

	return &model.OrderResult{ID: order.ID, Side: side, Pair: pair, Price: price, Amount: amount, Timestamp: ts}, nil
}

// CancelOrder 撤单并解冻资金，订单不存在时返回 false
func (p *PaperExchange) CancelOrder(_ context.Context, pair model.Pair, orderID string) (bool, error) {
	if pair != p.pair {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, o := range p.orders {
		if o.ID != orderID {
			continue
		}
		p.release(o)
		p.orders = append(p.orders[:i], p.orders[i+1:]...)
		p.logger.Info("Paper order cancelled", zap.String("OrderID", orderID))
		return true, nil
	}
	return false, nil
}

// release 解冻挂单占用的资金
func (p *PaperExchange) release(o model.OpenOrder) {
	currency, frozen := p.pair.TargetCurrency, o.Pending*o.Price
	if o.Side == model.SideSell {
		currency, frozen = p.pair.ExchangeCurrency, o.Pending
	}
	bal := p.balances.Get(currency)
	bal.InOrders -= frozen
	bal.Available += frozen
	p.balances[currency] = bal
}

// match 按挂单价全部成交，手续费从收到的币种中扣除
func (p *PaperExchange) match(ob model.Orderbook) {
	bestBid, hasBid := ob.BestBid()
	bestAsk, hasAsk := ob.BestAsk()

	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.orders[:0]
	for _, o := range p.orders {
		filled := (o.Side == model.SideBuy && hasAsk && bestAsk.Price <= o.Price) ||
			(o.Side == model.SideSell && hasBid && bestBid.Price >= o.Price)
		if !filled {
			remaining = append(remaining, o)
			continue
		}
		p.settle(o)
	}
	p.orders = remaining
}

func (p *PaperExchange) settle(o model.OpenOrder) {
	ex := p.balances.Get(p.pair.ExchangeCurrency)
	tgt := p.balances.Get(p.pair.TargetCurrency)
	notional := o.Pending * o.Price

	if o.Side == model.SideBuy {
		tgt.InOrders -= notional
		ex.Available += o.Pending * (1 - p.fees.BuyingFeeInPercentage)
	} else {
		ex.InOrders -= o.Pending
		tgt.Available += notional * (1 - p.fees.SellingFeeInPercentage)
	}
	p.balances[p.pair.ExchangeCurrency] = ex
	p.balances[p.pair.TargetCurrency] = tgt

	p.fills = append(p.fills, model.TradeRecord{
		Amount:    o.Pending,
		Price:     o.Price,
		Side:      o.Side,
		Timestamp: p.now(),
	})
	p.pruneFills()
	p.logger.Info("Paper order filled",
		zap.String("OrderID", o.ID),
		zap.String("side", o.Side.String()),
		zap.Float64("amount", o.Pending),
		zap.Float64("price", o.Price))
}

// pruneFills 丢弃超过保留期的成交，并限制总条数
func (p *PaperExchange) pruneFills() {
	cutoff := p.now().Add(-paperFillRetention)
	start := 0
	for start < len(p.fills) && p.fills[start].Timestamp.Before(cutoff) {
		start++
	}
	if n := len(p.fills) - start; n > paperMaxFills {
		start += n - paperMaxFills
	}
	if start > 0 {
		p.fills = append(p.fills[:0:0], p.fills[start:]...)
	}
}
