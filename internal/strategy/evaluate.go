package strategy

import (
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
)

// Inputs 一个决策周期的完整输入
type Inputs struct {
	Snapshot       model.Snapshot
	Strategy       service.StrategyConfig
	Limits         Limits
	Session        Session
	PricePrecision int32
	Now            time.Time
}

// Evaluation 决策核心的输出：趋势、报价、数量以及两个方向的决策
type Evaluation struct {
	Stats     MarketStats
	Trend     Trend
	Prices    Prices
	Portfolio Portfolio
	Values    PortfolioValues

	Buy  Quote
	Sell Quote

	BuyDecision  Decision
	SellDecision Decision

	// 与单边决策无关的撤单：趋势持有与闲置挂单
	Cancellations []Cancellation
}

// Evaluate 按 快照 -> 趋势 -> 报价 -> 数量 -> 决策门 的顺序计算，不产生副作用
func Evaluate(in Inputs) Evaluation {
	snap := in.Snapshot
	cfg := in.Strategy
	now := in.Now
	if now.IsZero() {
		now = snap.FetchedAt
	}

	var ev Evaluation
	ev.Stats = NewMarketStats(snap)
	ev.Trend = ClassifyTrend(ev.Stats.Purchase, ev.Stats.Sale, snap.Orderbook)
	ev.Portfolio = Portfolio{Exchange: snap.ExchangeBalance(), Target: snap.TargetBalance()}

	ev.Prices = ProposePrices(PriceInputs{
		Stats:                   ev.Stats,
		Trend:                   ev.Trend,
		Book:                    snap.Orderbook,
		Portfolio:               ev.Portfolio,
		Fees:                    snap.Fees,
		Sensitivity:             cfg.MarketChangeSensitivityRatio,
		PricePrecision:          in.PricePrecision,
		SellQuoteUsesSellingFee: cfg.SellQuoteUsesSellingFee,
	})

	ev.Buy, ev.Sell = SizeAmounts(SizingInputs{
		PurchasePrice: ev.Prices.PurchasePriceInPrinciple,
		SellingPrice:  ev.Prices.SellingPriceInPrinciple,
		LastPurchase:  ev.Stats.Purchase.Last,
		LastSale:      ev.Stats.Sale.Last,
		Trend:         ev.Trend,
		Portfolio:     ev.Portfolio,
		Fees:          snap.Fees,
		Strategy:      cfg,
		Limits:        in.Limits,
		Session:       in.Session,
	})

	gate := GateInputs{
		Buy:          ev.Buy,
		Sell:         ev.Sell,
		Trend:        ev.Trend,
		Portfolio:    ev.Portfolio,
		OpenOrders:   snap.OpenOrders,
		LastPurchase: ev.Stats.Purchase.Last,
		LastSale:     ev.Stats.Sale.Last,
		Strategy:     cfg,
		Now:          now,
	}
	ev.Values = ComputePortfolioValues(gate)
	ev.BuyDecision = DecideBuy(gate)
	ev.SellDecision = DecideSell(gate)

	ev.Cancellations = mergeCancellations(
		TrendHoldCancellations(ev.Trend, snap.Orderbook, snap.OpenOrders),
		IdleOrderDrops(DropInputs{
			Stats:      ev.Stats,
			Trend:      ev.Trend,
			Book:       snap.Orderbook,
			OpenOrders: snap.OpenOrders,
			Values:     ev.Values,
			Strategy:   cfg,
			Session:    in.Session,
			Now:        now,
		}),
	)
	return ev
}

// ImmediateCancellations 本周期立即执行的撤单 (HOLD 决策与独立规则)，按订单去重
func (ev Evaluation) ImmediateCancellations() []Cancellation {
	var holds []Cancellation
	for _, d := range []Decision{ev.BuyDecision, ev.SellDecision} {
		if d.Action == ActionHold {
			holds = append(holds, d.Cancellations...)
		}
	}
	return mergeCancellations(holds, ev.Cancellations)
}

func mergeCancellations(groups ...[]Cancellation) []Cancellation {
	seen := make(map[string]struct{})
	var out []Cancellation
	for _, g := range groups {
		for _, c := range g {
			if _, ok := seen[c.Order.ID]; ok {
				continue
			}
			seen[c.Order.ID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
